package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox is the filesystem backend. Every key resolves inside baseDir and
// writes land through a temp file and rename, so readers never see a
// partial object.
type Sandbox struct {
	baseDir string
}

// NewFilesystem creates a sandbox rooted at baseDir, creating it if needed.
func NewFilesystem(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path of the sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath maps key to an absolute path within the sandbox.
func (s *Sandbox) ResolvePath(key string) (string, error) {
	if filepath.IsAbs(key) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", key)
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(cleaned)))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", key)
	}
	return absPath, nil
}

// Download opens the object at key.
func (s *Sandbox) Download(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.ResolvePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

// Upload writes r to key atomically. The context is checked between
// chunks so a cancelled attempt does not finish a large copy.
func (s *Sandbox) Upload(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	return s.AtomicWriteReader(key, &contextReader{ctx: ctx, r: r})
}

// Exists reports whether an object is stored under key.
func (s *Sandbox) Exists(key string) (bool, error) {
	p, err := s.ResolvePath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// AtomicWriteReader writes data from r to key through a temp file in the
// same directory, then renames it into place.
func (s *Sandbox) AtomicWriteReader(key string, r io.Reader) error {
	targetPath, err := s.ResolvePath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(targetPath), randomHex(8)))
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	_, err = io.Copy(tempFile, r)
	closeErr := tempFile.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("writing to temporary file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temporary file: %w", closeErr)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func randomHex(n int) string {
	bytes := make([]byte, n/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(bytes)[:n]
}

var _ Client = (*Sandbox)(nil)
