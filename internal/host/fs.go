package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// ErrPathEscape means a request path resolved outside the sandbox root.
var ErrPathEscape = errors.New("path escapes sandbox root")

// LocalFS serves file operations from a directory subtree. Every request
// path is treated as absolute within the sandbox and resolved under Root;
// traversal out of the subtree is rejected before any disk access.
type LocalFS struct {
	root string
}

// NewLocalFS creates a sandboxed filesystem rooted at root. The directory
// is created if it does not exist.
func NewLocalFS(root string) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	return &LocalFS{root: abs}, nil
}

// Root returns the absolute sandbox root directory.
func (l *LocalFS) Root() string { return l.root }

// resolve maps a request path onto the host filesystem.
func (l *LocalFS) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(l.root, cleaned)
	if full != l.root && !strings.HasPrefix(full, l.root+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	return full, nil
}

// List returns the names of entries in a directory, directories suffixed
// with a separator.
func (l *LocalFS) List(ctx context.Context, path string) ([]string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// Read returns file contents, honoring a byte range when requested.
func (l *LocalFS) Read(ctx context.Context, req protocol.ReadRequest) ([]byte, error) {
	full, err := l.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if !req.Ranged {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", req.Path, err)
		}
		return data, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Path, err)
	}
	defer f.Close()

	buf := make([]byte, req.Length)
	n, err := f.ReadAt(buf, int64(req.Offset))
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read %s at %d: %w", req.Path, req.Offset, err)
	}
	return buf[:n], nil
}

// Write writes data at an offset, extending the file as needed.
func (l *LocalFS) Write(ctx context.Context, req protocol.WriteRequest) error {
	full, err := l.resolve(req.Path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", req.Path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(req.Data, int64(req.Offset)); err != nil {
		return fmt.Errorf("write %s at %d: %w", req.Path, req.Offset, err)
	}
	return nil
}

// Replace writes a complete file, truncating any prior content.
func (l *LocalFS) Replace(ctx context.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Stat reports size, kind, and modification time of a path.
func (l *LocalFS) Stat(ctx context.Context, path string) (dispatch.FileInfo, error) {
	full, err := l.resolve(path)
	if err != nil {
		return dispatch.FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return dispatch.FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return dispatch.FileInfo{
		Size:           uint64(info.Size()),
		Dir:            info.IsDir(),
		ModifiedMicros: uint64(info.ModTime().UnixMicro()),
	}, nil
}

// Create creates an empty file or a directory.
func (l *LocalFS) Create(ctx context.Context, path string, kind protocol.CreateKind) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	switch kind {
	case protocol.CreateDir:
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", path, err)
		}
	default:
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		f.Close()
	}
	return nil
}

// Delete removes a file or an empty directory.
func (l *LocalFS) Delete(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
