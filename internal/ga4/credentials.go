package ga4

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
)

// Credentials are the OAuth client and refresh token used to mint access tokens.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	Type         string `json:"type,omitempty"`
}

// Validate checks that every field needed for a refresh is present.
func (c Credentials) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client_id is missing")
	case c.ClientSecret == "":
		return errors.New("client_secret is missing")
	case c.RefreshToken == "":
		return errors.New("refresh_token is missing")
	}
	return nil
}

// CredentialsProvider returns the current credentials.
type CredentialsProvider interface {
	Credentials() (Credentials, error)
}

// StaticCredentials never change, e.g. when taken from the environment.
type StaticCredentials Credentials

// Credentials returns the static values.
func (s StaticCredentials) Credentials() (Credentials, error) {
	c := Credentials(s)
	return c, c.Validate()
}

// FileCredentials reads an authorized-user JSON file and reloads it when it
// changes on disk.
type FileCredentials struct {
	watcher       *fsnotify.Watcher
	onChange      func()
	stopChan      chan struct{}
	debounceTimer *time.Timer
	loadErr       error
	path          string
	creds         Credentials
	mu            sync.RWMutex
	closeOnce     sync.Once
}

// NewFileCredentials loads path and starts watching its directory. onChange,
// when non-nil, runs after every successful reload.
func NewFileCredentials(path string, onChange func()) (*FileCredentials, error) {
	f := &FileCredentials{
		path:     path,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}

	if err := f.load(); err != nil {
		return nil, err
	}

	if err := f.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start credentials watcher: %w", err)
	}
	return f, nil
}

// Credentials returns the most recently loaded credentials. A broken rewrite
// of the file keeps serving the previous good values.
func (f *FileCredentials) Credentials() (Credentials, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.creds.RefreshToken == "" && f.loadErr != nil {
		return Credentials{}, f.loadErr
	}
	return f.creds, nil
}

func (f *FileCredentials) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials file %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.creds = creds
	f.loadErr = nil
	f.mu.Unlock()
	return nil
}

// startWatcher watches the directory so atomic rename-based rewrites are seen.
func (f *FileCredentials) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	f.watcher = watcher

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go f.watchLoop()
	return nil
}

func (f *FileCredentials) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.mu.Lock()
				if f.debounceTimer != nil {
					f.debounceTimer.Stop()
				}
				f.debounceTimer = time.AfterFunc(debounceInterval, f.handleFileChange)
				f.mu.Unlock()
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("credentials watcher error", "error", err)

		case <-f.stopChan:
			return
		}
	}
}

func (f *FileCredentials) handleFileChange() {
	if err := f.load(); err != nil {
		f.mu.Lock()
		f.loadErr = err
		f.mu.Unlock()
		logger.Warn("credentials reload failed, keeping previous values", "path", f.path, "error", err)
		return
	}

	logger.Info("credentials reloaded", "path", f.path)
	if f.onChange != nil {
		f.onChange()
	}
}

// Close stops the watcher.
func (f *FileCredentials) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.stopChan)

		f.mu.Lock()
		if f.debounceTimer != nil {
			f.debounceTimer.Stop()
		}
		f.mu.Unlock()

		if f.watcher != nil {
			err = f.watcher.Close()
		}
	})
	return err
}
