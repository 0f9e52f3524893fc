// Package scratch_test tests scratch resource allocation and cleanup.
package scratch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/scratch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) (*scratch.Guard, string) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "scratch-test.log")
	require.NoError(t, err)

	baseDir := t.TempDir()

	return scratch.New(baseDir, testLogger), baseDir
}

func TestAcquire_UniqueDirectories(t *testing.T) {
	t.Parallel()

	guard, baseDir := newGuard(t)

	first, err := guard.Acquire()
	require.NoError(t, err)

	defer first.Release()

	second, err := guard.Acquire()
	require.NoError(t, err)

	defer second.Release()

	assert.NotEqual(t, first.Dir(), second.Dir())
	assert.Equal(t, baseDir, filepath.Dir(first.Dir()))
	assert.DirExists(t, first.Dir())
}

func TestResource_InputOutputRoundTrip(t *testing.T) {
	t.Parallel()

	guard, _ := newGuard(t)

	resource, err := guard.Acquire()
	require.NoError(t, err)

	defer resource.Release()

	inputPath, err := resource.WriteInput("Hello; rm -rf / `whoami`")
	require.NoError(t, err)

	stored, err := os.ReadFile(inputPath)
	require.NoError(t, err)
	assert.Equal(t, "Hello; rm -rf / `whoami`", string(stored))

	require.NoError(t, os.WriteFile(resource.OutputPath("wav"), []byte{0xDE, 0xAD}, 0o600))

	audio, err := resource.ReadOutput("wav")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, audio)
}

func TestRelease_RemovesEverythingAndIsIdempotent(t *testing.T) {
	t.Parallel()

	guard, _ := newGuard(t)

	resource, err := guard.Acquire()
	require.NoError(t, err)

	_, err = resource.WriteInput("text")
	require.NoError(t, err)

	resource.Release()
	assert.NoDirExists(t, resource.Dir())

	// A second release, and a release after external removal, are no-ops.
	resource.Release()

	_, err = resource.ReadOutput("wav")
	require.ErrorIs(t, err, scratch.ErrReleased)
}

func TestRelease_SwallowsMissingDirectory(t *testing.T) {
	t.Parallel()

	guard, _ := newGuard(t)

	resource, err := guard.Acquire()
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(resource.Dir()))

	assert.NotPanics(t, resource.Release)
}

func TestNew_DefaultsToTempDir(t *testing.T) {
	t.Parallel()

	guard := scratch.New("", nil)

	resource, err := guard.Acquire()
	require.NoError(t, err)

	defer resource.Release()

	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(resource.Dir()))
}
