package crypto

import "github.com/alexedwards/argon2id"

// HashKey produces a storable argon2id hash of a decryption key.
func HashKey(key string) (string, error) {
	return argon2id.CreateHash(key, argon2id.DefaultParams)
}

func ValidateKeyHash(hash string) error {
	_, _, _, err := argon2id.DecodeHash(hash)
	return err
}

// VerifyKey reports whether key matches a hash created by HashKey.
func VerifyKey(key, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(key, hash)
}
