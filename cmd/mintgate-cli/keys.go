package main

import (
	"fmt"
	"os"

	"mintgate/cmd/internal/passphrase"
	"mintgate/crypto"
)

func runGenerateKey(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli generate-key <file>")
		return 1
	}
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing keystore %s\n", path)
		return 1
	}

	pass, err := passphrase.NewSource(keyPassEnv).Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fmt.Fprintf(os.Stderr, "save keystore: %v\n", err)
		return 1
	}
	fmt.Printf("keystore: %s\naddress:  %s\n", path, key.PubKey().Address().String())
	return 0
}

func runInspectKey(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli inspect-key <file>")
		return 1
	}
	key, err := loadKey(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(key.PubKey().Address().String())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keyPassEnv).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}
