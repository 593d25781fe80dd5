package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type fileTokens struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// File persists the token pair as a YAML document on disk. Writes go through
// a temp file and rename so readers never observe half of a pair.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a file-backed store at path, creating the parent directory.
func NewFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &File{path: path}, nil
}

// DefaultFilePath returns the per-user token file location.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "docdesk", "tokens.yaml")
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) SetTokens(_ context.Context, access, refresh string) error {
	if err := checkPair(access, refresh); err != nil {
		return err
	}
	data, err := yaml.Marshal(fileTokens{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (f *File) AccessToken(_ context.Context) (string, bool, error) {
	t, err := f.read()
	if err != nil {
		return "", false, err
	}
	return t.AccessToken, t.AccessToken != "", nil
}

func (f *File) RefreshToken(_ context.Context) (string, bool, error) {
	t, err := f.read()
	if err != nil {
		return "", false, err
	}
	return t.RefreshToken, t.RefreshToken != "", nil
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (f *File) read() (fileTokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t fileTokens
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("read token file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fileTokens{}, fmt.Errorf("parse token file: %w", err)
	}
	return t, nil
}

// Change describes the token file state after an external modification.
type Change struct {
	HasTokens bool
}

// Watch reports modifications of the token file made by any process until ctx
// is done. The directory is watched because writes replace the file by rename.
func (f *File) Watch(ctx context.Context, fn func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch token dir: %w", err)
	}
	target := filepath.Clean(f.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				access, ok, err := f.AccessToken(ctx)
				if err != nil {
					slog.Warn("token file unreadable after change", "path", f.path, "err", err)
					continue
				}
				fn(Change{HasTokens: ok && access != ""})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("token watcher error", "err", err)
			}
		}
	}()
	return nil
}
