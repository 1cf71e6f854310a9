package secrets

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/reeveci/reeve-matrix/crypto"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/vars"
)

var ErrNoKey = errors.New("no decryption key provided")
var ErrKeyMismatch = errors.New("decryption key does not match the configured key hash")
var ErrUndeclared = errors.New("secret is not declared")

type DecryptionError struct {
	Secret string
	Err    error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("cannot decrypt secret \"%s\" - %s", e.Secret, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Vault holds the secrets of one invocation. Every blob is decrypted exactly once by Open;
// failures are remembered per secret and reported to whoever acquires that secret.
type Vault struct {
	lock     sync.RWMutex
	values   map[string][]byte
	failures map[string]error
	released bool
}

// Open decrypts all blobs with key. If keyHash is set, the key is verified against it first.
func Open(key, keyHash string, blobs map[string]string) *Vault {
	v := &Vault{
		values:   make(map[string][]byte, len(blobs)),
		failures: make(map[string]error),
	}
	if len(blobs) == 0 {
		return v
	}

	var keyErr error
	switch {
	case key == "":
		keyErr = ErrNoKey

	case keyHash != "":
		ok, err := crypto.VerifyKey(key, keyHash)
		if err != nil {
			keyErr = fmt.Errorf("invalid key hash - %s", err)
		} else if !ok {
			keyErr = ErrKeyMismatch
		}
	}

	for name, blob := range blobs {
		if keyErr != nil {
			v.failures[name] = keyErr
			continue
		}
		plaintext, err := crypto.Open(key, blob)
		if err != nil {
			v.failures[name] = err
			continue
		}
		v.values[name] = plaintext
	}

	return v
}

// Acquire returns env entries for the named secrets.
// Any secret that failed to decrypt fails the whole acquisition.
func (v *Vault) Acquire(names ...string) (map[string]schema.Env, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	if v.released {
		return nil, schema.ERROR_RELEASED
	}

	result := make(map[string]schema.Env, len(names))
	for _, name := range names {
		if err, failed := v.failures[name]; failed {
			return nil, &DecryptionError{Secret: name, Err: err}
		}
		value, ok := v.values[name]
		if !ok {
			return nil, &DecryptionError{Secret: name, Err: ErrUndeclared}
		}
		result[name] = schema.Env{Value: string(value), Priority: vars.PRIORITY_SECRET, Secret: true}
	}
	return result, nil
}

// Values returns every decrypted plaintext, for masking.
func (v *Vault) Values() []string {
	v.lock.RLock()
	defer v.lock.RUnlock()

	result := make([]string, 0, len(v.values))
	for _, value := range v.values {
		if len(value) > 0 {
			result = append(result, string(value))
		}
	}
	return result
}

// Failed lists the secrets that could not be decrypted.
func (v *Vault) Failed() []string {
	v.lock.RLock()
	defer v.lock.RUnlock()

	result := make([]string, 0, len(v.failures))
	for name := range v.failures {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (v *Vault) Len() int {
	v.lock.RLock()
	defer v.lock.RUnlock()

	return len(v.values) + len(v.failures)
}

// Release zeroes all plaintext buffers. Acquire fails afterwards.
func (v *Vault) Release() {
	v.lock.Lock()
	defer v.lock.Unlock()

	for name, value := range v.values {
		for i := range value {
			value[i] = 0
		}
		delete(v.values, name)
	}
	v.released = true
}
