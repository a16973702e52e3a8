package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when nothing is stored at the path.
var ErrNotFound = errors.New("object not found")

// Adapter is a flat key/value blob store addressed by slash separated paths.
type Adapter interface {
	// Put stores data at the given path, replacing any previous object
	Put(ctx context.Context, path string, data io.Reader) error

	// Get retrieves data from the given path; wraps ErrNotFound when missing
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes data at the given path; deleting a missing path is not an error
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// CleanPath normalizes a storage key and rejects keys escaping the root.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "", fmt.Errorf("empty storage path")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("storage path %q escapes root", p)
		}
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// PutBytes stores b at path.
func PutBytes(ctx context.Context, a Adapter, path string, b []byte) error {
	return a.Put(ctx, path, bytes.NewReader(b))
}

// GetBytes reads the whole object at path.
func GetBytes(ctx context.Context, a Adapter, path string) ([]byte, error) {
	rc, err := a.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// PutJSON stores v as indented JSON.
func PutJSON(ctx context.Context, a Adapter, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return PutBytes(ctx, a, path, data)
}

// GetJSON decodes the object at path into v.
func GetJSON(ctx context.Context, a Adapter, path string, v any) error {
	data, err := GetBytes(ctx, a, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}
