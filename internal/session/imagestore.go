// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FileImageStore persists inline-uploaded image bytes to a local directory,
// keyed by content hash so re-uploading identical bytes is idempotent. This
// is standard-library-only plumbing: spec.md treats the image blob store as
// "external" and out of the C1-C10 contract, and none of the example repos
// in the corpus show an object-storage client (S3 or otherwise) wired to a
// chat attachment path to ground a richer implementation on, so a local
// filesystem store stands in for it here.
type FileImageStore struct {
	dir string
}

// NewFileImageStore builds a FileImageStore rooted at dir, creating it if
// necessary.
func NewFileImageStore(dir string) (*FileImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create image store dir: %w", err)
	}
	return &FileImageStore{dir: dir}, nil
}

func (f *FileImageStore) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + extensionFor(mimeType)
	path := filepath.Join(f.dir, name)

	if _, err := os.Stat(path); err == nil {
		return "file://" + path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("session: write image: %w", err)
	}
	return "file://" + path, nil
}

func (f *FileImageStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	path, ok := pathFromRef(ref, f.dir)
	if !ok {
		return nil, "", fmt.Errorf("session: %q is not a local image reference", ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("session: read image: %w", err)
	}
	return data, mimeFromExtension(filepath.Ext(path)), nil
}

func pathFromRef(ref, dir string) (string, bool) {
	const prefix = "file://"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", false
	}
	path := ref[len(prefix):]
	if filepath.Dir(path) != dir {
		return "", false
	}
	return path, true
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func mimeFromExtension(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
