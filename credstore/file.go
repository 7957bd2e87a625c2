package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a durable Store/StateStore backed by a single JSON document.
// The whole document is rewritten through a temp-file-then-rename cycle, so
// the token pair can never be observed half-updated, even across a crash.
type File struct {
	mu   sync.Mutex
	path string
}

var (
	_ Store      = (*File)(nil)
	_ StateStore = (*File)(nil)
)

type fileDoc struct {
	Credentials Credentials              `json:"credentials"`
	States      map[string]RedirectState `json:"states,omitempty"`
}

// NewFile creates a file-backed store at path. The parent directory is
// created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Write(ctx context.Context, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.update(func(doc *fileDoc) {
		doc.Credentials = creds
	})
}

func (f *File) Read(ctx context.Context) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return Credentials{}, err
	}
	return doc.Credentials, nil
}

func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.update(func(doc *fileDoc) {
		doc.Credentials = Credentials{}
	})
}

func (f *File) SaveState(ctx context.Context, provider string, st RedirectState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.update(func(doc *fileDoc) {
		if doc.States == nil {
			doc.States = make(map[string]RedirectState)
		}
		doc.States[provider] = st
	})
}

func (f *File) TakeState(ctx context.Context, provider string) (RedirectState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return RedirectState{}, err
	}

	st, ok := doc.States[provider]
	if !ok {
		return RedirectState{}, ErrNotFound
	}
	delete(doc.States, provider)

	if err := f.save(doc); err != nil {
		return RedirectState{}, err
	}
	return st, nil
}

func (f *File) load() (*fileDoc, error) {
	doc := &fileDoc{}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) update(mutate func(*fileDoc)) error {
	doc, err := f.load()
	if err != nil {
		return err
	}
	mutate(doc)
	return f.save(doc)
}

// save writes the document atomically: temp file in the same directory,
// fsync, close, then rename over the destination. If rename fails (locked
// destination on Windows) it retries after removing the old file.
func (f *File) save(doc *fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, 0o600)

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(f.path)
		if err2 := os.Rename(tmpPath, f.path); err2 != nil {
			return fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}
