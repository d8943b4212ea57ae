package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes files into a local directory.
type FileSink struct {
	Dir string
}

// NewFileSink returns a sink writing into dir, "." when empty.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Save writes data atomically: readers never observe a partial file.
func (s *FileSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("export: invalid file name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+base+".*")
	if err != nil {
		return "", fmt.Errorf("export: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("export: write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", base, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("export: chmod %s: %w", base, err)
	}

	target := filepath.Join(s.Dir, base)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("export: rename %s: %w", base, err)
	}
	return target, nil
}
