// Package scratch allocates per-attempt temporary locations for external
// speech tools and guarantees their removal.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	dirPrefix       = "tts-"
	dirPermissions  = 0o700
	filePermissions = 0o600

	inputFileName = "input.txt"
	outputBase    = "output"
)

// ErrReleased is returned when a released resource is used again.
var ErrReleased = errors.New("scratch resource already released")

// Guard hands out scratch resources under a base directory.
type Guard struct {
	baseDir string
	log     *logger.Logger
}

// New creates a Guard rooted at baseDir, or the host temp dir when empty.
func New(baseDir string, log *logger.Logger) *Guard {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	return &Guard{
		baseDir: baseDir,
		log:     log,
	}
}

// Resource is a uniquely named directory owned by one synthesis attempt.
// Every path it hands out lives inside that directory.
type Resource struct {
	dir      string
	log      *logger.Logger
	released bool
}

// Acquire creates a new scratch resource. The caller must defer Release.
func (g *Guard) Acquire() (*Resource, error) {
	dir := filepath.Join(g.baseDir, dirPrefix+uuid.NewString())

	err := os.Mkdir(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return &Resource{
		dir:      dir,
		log:      g.log,
		released: false,
	}, nil
}

// Dir returns the directory backing the resource.
func (r *Resource) Dir() string {
	return r.dir
}

// OutputPath returns the path an external tool should write audio to.
func (r *Resource) OutputPath(ext string) string {
	return filepath.Join(r.dir, outputBase+"."+ext)
}

// WriteInput stores text as raw bytes and returns the file path.
func (r *Resource) WriteInput(text string) (string, error) {
	if r.released {
		return "", ErrReleased
	}

	path := filepath.Join(r.dir, inputFileName)

	err := os.WriteFile(path, []byte(text), filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write scratch input: %w", err)
	}

	return path, nil
}

// ReadOutput reads the audio written by the tool.
func (r *Resource) ReadOutput(ext string) ([]byte, error) {
	if r.released {
		return nil, ErrReleased
	}

	data, err := os.ReadFile(r.OutputPath(ext))
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch output: %w", err)
	}

	return data, nil
}

// Release removes every path of the resource. Removal is best-effort and
// never reports an error; it is safe to call more than once.
func (r *Resource) Release() {
	if r == nil || r.released {
		return
	}

	r.released = true

	removeErr := os.RemoveAll(r.dir)
	if removeErr != nil && r.log != nil {
		r.log.Warn("Failed to remove scratch directory '%s': %v", r.dir, removeErr)
	}
}
