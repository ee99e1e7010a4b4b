// Package localfs implements storage.Provider on the local filesystem.
// Keys map to paths under <dataRoot>/media/<key>.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wadeskhq/wadesk/internal/storage"
)

// Provider stores media objects under a host directory.
type Provider struct {
	dataRoot string
}

// New creates a filesystem storage provider rooted at dataRoot.
func New(dataRoot string) (*Provider, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	return &Provider{dataRoot: abs}, nil
}

// Put writes data under the key, creating parent directories as needed.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open reads the object stored under the key.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes the object at key. Missing objects are not an error.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// hostPath converts a storage key into a file path, rejecting absolute keys
// and traversal attempts.
func (p *Provider) hostPath(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || clean == "" {
		return "", fmt.Errorf("%w: %s", storage.ErrInvalidKey, key)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute key %s", storage.ErrInvalidKey, key)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal %s", storage.ErrInvalidKey, key)
	}
	joined := filepath.Join(p.dataRoot, "media", clean)
	if !strings.HasPrefix(joined, p.dataRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes data root %s", storage.ErrInvalidKey, key)
	}
	return joined, nil
}
