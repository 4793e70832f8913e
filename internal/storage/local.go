package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Local struct {
	BaseDir string
}

func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

func (l *Local) Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error) {
	_ = ctx

	key := ObjectKey(in)
	dstPath, err := l.path(key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return PutResult{}, err
	}

	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return PutResult{}, err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return PutResult{}, err
	}
	return PutResult{Key: key, Location: dstPath}, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	_ = ctx
	p, err := l.path(key)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// path keeps every key inside BaseDir.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	p := filepath.Join(l.BaseDir, clean)
	base := filepath.Clean(l.BaseDir)
	if p != base && !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("archive key escapes base dir: %s", key)
	}
	return p, nil
}

func (l *Local) String() string { return fmt.Sprintf("local(%s)", l.BaseDir) }
