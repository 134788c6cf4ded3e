package repotest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/regdesk/backend/internal/services/storage"
)

// ArtifactStore keeps objects in memory
type ArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// PresignErr, when set, is returned by PresignedURL
	PresignErr error
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{objects: make(map[string][]byte)}
}

func (a *ArtifactStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *ArtifactStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (a *ArtifactStore) PresignedURL(ctx context.Context, key, filename string) (string, error) {
	if a.PresignErr != nil {
		return "", a.PresignErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.objects[key]; !ok {
		return "", errors.New("no such key")
	}
	return "https://artifacts.test/" + key + "?signed=1", nil
}

func (a *ArtifactStore) Remove(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

// Has reports whether key is stored
func (a *ArtifactStore) Has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok
}

// Drop deletes key behind the workflow's back, simulating a lost artifact
func (a *ArtifactStore) Drop(key string) {
	a.Remove(context.Background(), key)
}
