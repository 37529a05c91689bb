package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DirPrefix starts the name of every working area directory.
const DirPrefix = "skyloop_"

// DefaultSuffix is appended to allocated map artifacts.
const DefaultSuffix = ".sdf"

// Workspace is the private working area of one run. It allocates unique
// artifact handles and relocates files into itself. Nothing in it
// outlives the run unless retention is requested.
type Workspace struct {
	dir    string
	suffix string

	mu      sync.Mutex
	maps    int
	configs int
	lists   int
}

// New creates a uniquely named working area under root. An empty root
// falls back to os.TempDir.
func New(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	dir := filepath.Join(root, DirPrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{dir: dir, suffix: DefaultSuffix}, nil
}

// Dir returns the working area path.
func (w *Workspace) Dir() string {
	return w.dir
}

// NewMap allocates a fresh path for an intermediate map. The file is not
// created.
func (w *Workspace) NewMap() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maps++
	return filepath.Join(w.dir, fmt.Sprintf("map%d%s", w.maps, w.suffix))
}

// NewConfig allocates the next configuration document path: conf0, conf1...
func (w *Workspace) NewConfig() (string, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.configs
	w.configs++
	return filepath.Join(w.dir, fmt.Sprintf("conf%d", n)), n
}

// NewList allocates a path for a group list file.
func (w *Workspace) NewList(stem string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lists++
	return filepath.Join(w.dir, fmt.Sprintf("%s%d.lis", stem, w.lists))
}

// LogDir returns the directory for invocation transcripts, creating it on
// first use.
func (w *Workspace) LogDir() (string, error) {
	return w.SubDir("logs")
}

// SubDir returns the named directory inside the working area, creating it
// on first use.
func (w *Workspace) SubDir(name string) (string, error) {
	dir := filepath.Join(w.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", name, err)
	}
	return dir, nil
}

// Adopt moves path into the working area, keeping its base name, and
// returns the new location.
func (w *Workspace) Adopt(path string) (string, error) {
	dst := filepath.Join(w.dir, filepath.Base(path))
	if err := moveFile(path, dst); err != nil {
		return "", fmt.Errorf("relocate %s: %w", path, err)
	}
	return dst, nil
}

// moveFile renames src to dst, falling back to copy and remove when the
// two are on different filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
