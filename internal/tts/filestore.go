package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileClipStore writes synthesized clips to a local directory and returns
// URLs of the form baseURL/<cacheKey>.mp3; the HTTP API does not serve
// that directory itself. A production deployment would swap
// this for an object-storage-backed ClipStore without touching Client.
type FileClipStore struct {
	dir     string
	baseURL string
}

func NewFileClipStore(dir, baseURL string) *FileClipStore {
	return &FileClipStore{dir: dir, baseURL: baseURL}
}

func (f *FileClipStore) Put(ctx context.Context, cacheKey string, audio []byte) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create clip dir: %w", err)
	}
	name := cacheKey + ".mp3"
	if err := os.WriteFile(filepath.Join(f.dir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("write clip: %w", err)
	}
	return f.baseURL + "/" + name, nil
}
