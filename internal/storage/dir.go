package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirBucket keeps objects as plain files, for single-box installs where the
// server itself serves the directory.
type DirBucket struct {
	root string
	base string
}

func NewDirBucket(root, publicBase string) *DirBucket {
	return &DirBucket{root: root, base: publicBase}
}

func (b *DirBucket) Root() string { return b.root }

func (b *DirBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (b *DirBucket) PublicURL(key string) string {
	return publicURL(b.base, key)
}
