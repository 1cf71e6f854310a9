package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reeveci/reeve-matrix/crypto"
	"github.com/reeveci/reeve-matrix/schema"
)

type EncryptCmd struct {
	KeyEnv      string `name:"key-env" help:"Environment variable holding the key" default:"${default_key_env}"`
	KeepNewline bool   `name:"keep-newline" help:"Keep a trailing newline of the input"`
}

func (cmd *EncryptCmd) Run(global *Global, root *CLI) error {
	key, err := requireKey(cmd.KeyEnv, root.EnvFile)
	if err != nil {
		return err
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	if !cmd.KeepNewline {
		input = []byte(strings.TrimSuffix(strings.TrimSuffix(string(input), "\n"), "\r"))
	}
	if len(input) == 0 {
		return fmt.Errorf("nothing to encrypt on stdin")
	}

	blob, err := crypto.Seal(key, input)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, blob)
	return nil
}

type HashKeyCmd struct {
	KeyEnv string `name:"key-env" help:"Environment variable holding the key" default:"${default_key_env}"`
}

func (cmd *HashKeyCmd) Run(global *Global, root *CLI) error {
	key, err := requireKey(cmd.KeyEnv, root.EnvFile)
	if err != nil {
		return err
	}

	hash, err := crypto.HashKey(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, hash)
	return nil
}

func requireKey(keyEnv string, envFiles []string) (string, error) {
	if keyEnv == "" {
		keyEnv = schema.DEFAULT_KEY_ENV
	}
	key, err := lookupKey(keyEnv, envFiles, ".")
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("%w in %s", errNoKey, keyEnv)
	}
	return key, nil
}
