package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rohankatakam/repograph/internal/errors"
	"golang.org/x/term"
)

// CredentialManager resolves secrets with the priority chain
// environment variable, then OS keychain, then interactive prompt.
type CredentialManager struct {
	keyring *KeyringManager
	in      io.Reader
	out     io.Writer
}

// NewCredentialManager creates a credential manager reading from the terminal
func NewCredentialManager() *CredentialManager {
	return &CredentialManager{
		keyring: NewKeyringManager(),
		in:      os.Stdin,
		out:     os.Stderr,
	}
}

// Resolve returns the secret for item, consulting envVar first.
// prompt=false disables the interactive fallback (CI, piped input).
func (cm *CredentialManager) Resolve(item, envVar string, prompt bool) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	if cm.keyring.IsAvailable() {
		if v, err := cm.keyring.Get(item); err == nil && v != "" {
			return v, nil
		}
	}

	if prompt && isInteractive() {
		fmt.Fprintf(cm.out, "Enter %s: ", item)
		v, err := cm.readSecurely()
		if err != nil {
			return "", err
		}
		if v == "" {
			return "", errors.ConfigErrorf("%s is required", item)
		}
		if cm.keyring.IsAvailable() {
			if err := cm.keyring.Set(item, v); err == nil {
				fmt.Fprintln(cm.out, "Saved to keychain")
			}
		}
		return v, nil
	}

	return "", errors.ConfigErrorf(
		"%s not found. Set it via:\n"+
			"  1. Environment variable: export %s=...\n"+
			"  2. Run: repograph credentials set %s", item, envVar, item)
}

// Store saves a secret read from the terminal (or piped stdin) to the keychain
func (cm *CredentialManager) Store(item string) error {
	if !cm.keyring.IsAvailable() {
		return errors.ConfigError("OS keychain is not available on this system")
	}
	fmt.Fprintf(cm.out, "Enter %s: ", item)
	v, err := cm.readSecurely()
	if err != nil {
		return err
	}
	return cm.keyring.Set(item, v)
}

// readSecurely reads a secret without echoing when stdin is a terminal
func (cm *CredentialManager) readSecurely() (string, error) {
	if f, ok := cm.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cm.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(cm.in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
