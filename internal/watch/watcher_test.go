package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"eyeparse/internal/shared/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give fsnotify time to register the folder
	time.Sleep(50 * time.Millisecond)
	return func() {
		stop()
		require.NoError(t, <-done)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	logger, _ := testutil.NewTestLogger(t)

	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, Options{Extension: ".asc", Debounce: 100 * time.Millisecond, Logger: logger})
	stop := startWatcher(t, w)
	defer stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "s1.asc"), []byte("MSG 1 x\n"), 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, w.Stats().Events, int64(1))
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, Options{Extension: ".asc", Debounce: 50 * time.Millisecond})
	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Zero(t, w.Stats().Events)
}

func TestWatcherKeepsRunningAfterFailedRebuild(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return errors.New("assembly conflict")
	}, Options{Extension: ".asc", Debounce: 30 * time.Millisecond})
	stop := startWatcher(t, w)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.asc"), []byte("1"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.asc"), []byte("2"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return w.Stats().Failures == 2 }, time.Second, 10*time.Millisecond)
}

func TestWatcherMissingFolder(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "absent"), func(context.Context) error { return nil }, Options{})
	err := w.Run(context.Background())
	assert.Error(t, err)
}
