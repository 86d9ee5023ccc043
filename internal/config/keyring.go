package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName   = "peak"
	credentialKey = "api-key"

	envKeyringBackend  = "PEAK_KEYRING_BACKEND"
	envKeyringPassword = "PEAK_KEYRING_PASSWORD"
	envCredentialsDir  = "PEAK_CREDENTIALS_DIR"
)

// ErrNotLoggedIn is returned when no credential has been stored.
var ErrNotLoggedIn = errors.New("no stored credential - run 'peak auth login' first")

// openKeyring is a package-level function for opening keyrings.
// It can be replaced in tests to use a mock keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

// SetOpenKeyring allows replacing the keyring opener for testing.
// Returns a cleanup function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName:      serviceName,
		FileDir:          keyringFileDir(),
		FilePasswordFunc: keyringFilePassword,
	}

	// Headless Linux should bypass native backends and use encrypted file
	// storage.
	backend := strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend)))
	forceFile := backend == "file" ||
		(backend == "" && runtime.GOOS == "linux" && strings.TrimSpace(os.Getenv("DBUS_SESSION_BUS_ADDRESS")) == "")
	if forceFile {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	return cfg
}

func keyringFileDir() string {
	if dir := strings.TrimSpace(os.Getenv(envCredentialsDir)); dir != "" {
		return filepath.Join(dir, "keyring")
	}
	if dir, err := os.UserConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, serviceName, "keyring")
	}
	return filepath.Join(os.TempDir(), serviceName, "keyring")
}

func keyringFilePassword(prompt string) (string, error) {
	if password := os.Getenv(envKeyringPassword); strings.TrimSpace(password) != "" {
		return password, nil
	}
	if info, err := os.Stdin.Stat(); err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("set %s when using the file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

// SaveCredential stores the API key in the OS keyring.
func SaveCredential(token string) error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}
	if err := ring.Set(keyring.Item{Key: credentialKey, Data: []byte(token)}); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// LoadCredential retrieves the stored API key from the OS keyring.
func LoadCredential() (string, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}
	item, err := ring.Get(credentialKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotLoggedIn
		}
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return string(item.Data), nil
}

// DeleteCredential removes the stored API key from the OS keyring.
func DeleteCredential() error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}
	if err := ring.Remove(credentialKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
