// Package sshkey loads the public key injected into spawned instances and
// generates a new key pair when the user has none.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// PublicKey is a parsed authorized_keys entry
type PublicKey struct {
	Path string
	// Authorized is the single-line OpenSSH form, without trailing newline
	Authorized        string
	FingerprintMD5    string
	FingerprintSHA256 string

	key ssh.PublicKey
}

// Key returns the parsed key.
func (k *PublicKey) Key() ssh.PublicKey {
	return k.key
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load reads and validates an OpenSSH public key file.
func Load(path string) (*PublicKey, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", expanded, err)
	}

	return Parse(expanded, data)
}

// Parse validates data as an OpenSSH public key; path is informational.
func Parse(path string, data []byte) (*PublicKey, error) {
	key, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("invalid public key %s: %w", path, err)
	}

	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	if comment != "" {
		authorized += " " + comment
	}

	return &PublicKey{
		Path:              path,
		Authorized:        authorized,
		FingerprintMD5:    ssh.FingerprintLegacyMD5(key),
		FingerprintSHA256: ssh.FingerprintSHA256(key),
		key:               key,
	}, nil
}

// Generate creates an ed25519 key pair. pubPath names the public key; the
// private key is written next to it without the .pub suffix. Existing files
// are never overwritten.
func Generate(pubPath string) (*PublicKey, error) {
	pubPath, err := ExpandPath(pubPath)
	if err != nil {
		return nil, err
	}
	privPath := strings.TrimSuffix(pubPath, ".pub")
	if privPath == pubPath {
		pubPath += ".pub"
	}

	for _, p := range []string{privPath, pubPath} {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("refusing to overwrite existing key %s", p)
		}
	}

	if err := os.MkdirAll(filepath.Dir(pubPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "gmab")
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate public key: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " gmab\n"
	if err := os.WriteFile(pubPath, []byte(line), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return Parse(pubPath, []byte(line))
}
