package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// File is a Store backed by a text file holding one record per line,
// newline-terminated. A missing file reads as an empty store. The file is
// opened and closed inside every call.
type File struct {
	path string
}

func NewFile(path string) (*File, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty file store path")
	}
	return &File{path: filepath.Clean(p)}, nil
}

func (f *File) Name() string { return f.path }

func (f *File) ReadAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- path comes from operator configuration
	fh, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer func() { _ = fh.Close() }()

	out := make([]string, 0)
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return out, nil
}

func (f *File) ReadBlob(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// #nosec G304 -- path comes from operator configuration
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.path, err)
	}
	return strings.TrimRightFunc(string(b), unicode.IsSpace), nil
}

func (f *File) AppendLine(ctx context.Context, record string) error {
	return f.write(ctx, os.O_CREATE|os.O_WRONLY|os.O_APPEND, []string{record})
}

func (f *File) Clear(ctx context.Context) error {
	return f.write(ctx, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, nil)
}

func (f *File) WriteAll(ctx context.Context, records []string) error {
	return f.write(ctx, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, records)
}

func (f *File) write(ctx context.Context, flag int, records []string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.path, err)
		}
	}
	// #nosec G302 G304 -- store files are plain text owned by the operator
	fh, err := os.OpenFile(f.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", f.path, cerr)
		}
	}()
	w := bufio.NewWriter(fh)
	for _, r := range records {
		if _, err := w.WriteString(r + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
