package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openclaw/missioncontrol/internal"
)

// DefaultFilePath is the location of the session file relative to the user's
// home directory.
const DefaultFilePath = ".config/missioncontrol/session.json"

type (
	// FileStorage is a JSON file in a user's home dir that stores session
	// values for one or more Mission Control hosts.
	FileStorage struct {
		path     string
		hostname string

		mu sync.Mutex
	}

	fileConfig struct {
		Sessions map[string]map[string]string `json:"sessions"`
	}

	// Directories provides the user's home directory.
	Directories interface {
		UserHomeDir() (string, error)
	}

	osDirectories struct{}
)

func (osDirectories) UserHomeDir() (string, error) { return os.UserHomeDir() }

// DefaultPath returns the full path of the session file. A nil dirs uses the
// OS home directory.
func DefaultPath(dirs Directories) (string, error) {
	if dirs == nil {
		dirs = osDirectories{}
	}
	home, err := dirs.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultFilePath), nil
}

// NewFileStorage constructs a file storage at path, scoping values to the
// hostname of the given API address.
func NewFileStorage(path, address string) (*FileStorage, error) {
	hostname, err := internal.SanitizeHostname(address)
	if err != nil {
		return nil, err
	}
	return &FileStorage{path: path, hostname: hostname}, nil
}

func (s *FileStorage) String() string { return s.path }

func (s *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.read()
	if err != nil {
		return "", false, unavailable("reading session file", err)
	}
	v, ok := config.Sessions[s.hostname][key]
	return v, ok, nil
}

// Set saves the value for the store's host, overwriting any existing value
// for the key.
func (s *FileStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.read()
	if err != nil {
		return unavailable("reading session file", err)
	}
	if config.Sessions[s.hostname] == nil {
		config.Sessions[s.hostname] = make(map[string]string)
	}
	config.Sessions[s.hostname][key] = value

	if err := s.write(config); err != nil {
		return unavailable("writing session file", err)
	}
	return nil
}

func (s *FileStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.read()
	if err != nil {
		return unavailable("reading session file", err)
	}
	values, ok := config.Sessions[s.hostname]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(values, k)
	}
	if len(values) == 0 {
		delete(config.Sessions, s.hostname)
	}
	if err := s.write(config); err != nil {
		return unavailable("writing session file", err)
	}
	return nil
}

func (s *FileStorage) read() (*fileConfig, error) {
	// Construct session config obj
	config := fileConfig{Sessions: make(map[string]map[string]string)}

	// Read any existing file contents
	data, err := os.ReadFile(s.path)
	if err == nil {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", s.path, err)
		}
		if config.Sessions == nil {
			config.Sessions = make(map[string]map[string]string)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return &config, nil
}

func (s *FileStorage) write(config *fileConfig) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	// Ensure all parent directories of session file exist
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}
