// Package credentials persists the signed tokens the CLI obtains from a
// server, one per server URL, under the user's home directory.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCredentialNotFound is returned when no credential is stored for a
// server.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is a stored bearer token with its metadata.
type Credential struct {
	Server    string    `json:"server"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config represents the credentials configuration file.
type Config struct {
	Version     int                   `json:"version"`
	Credentials map[string]Credential `json:"credentials"`
}

// Store manages credential storage on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a new credential store.
// If baseDir is empty, uses ~/.tonearm/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".tonearm")
	}

	// Tokens grant account access; keep the directory private.
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	store := &Store{baseDir: baseDir}

	if err := store.ensureConfig(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return store, nil
}

// Get returns the stored credential for a server.
func (s *Store) Get(server string) (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	cred, ok := cfg.Credentials[server]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	return &cred, nil
}

// Put stores (or replaces) the credential for a server.
func (s *Store) Put(cred Credential) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	cred.UpdatedAt = time.Now()
	cfg.Credentials[cred.Server] = cred

	return s.saveConfig(cfg)
}

// Delete removes the stored credential for a server. Removing a credential
// that does not exist is not an error.
func (s *Store) Delete(server string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	delete(cfg.Credentials, server)

	return s.saveConfig(cfg)
}

// List returns all stored credentials.
func (s *Store) List() ([]Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		creds = append(creds, cred)
	}

	return creds, nil
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, "credentials.json")
}

func (s *Store) ensureConfig() error {
	if _, err := os.Stat(s.configPath()); err == nil {
		return nil
	}

	return s.saveConfig(&Config{
		Version:     1,
		Credentials: map[string]Credential{},
	})
}

func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse credentials config: %w", err)
	}

	if cfg.Credentials == nil {
		cfg.Credentials = map[string]Credential{}
	}

	return &cfg, nil
}

func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials config: %w", err)
	}

	if err := os.WriteFile(s.configPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials config: %w", err)
	}

	return nil
}
