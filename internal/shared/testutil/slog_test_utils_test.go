package testutil

import (
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		assert.Len(t, handler.GetRecords(), 2)
		assert.True(t, handler.ContainsMessage("test message"))
		assert.True(t, handler.ContainsAttr("key", "value"))
	})

	t.Run("keeps attributes bound with With", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With(slog.String("component", "segmenter")).Info("trial closed")

		AssertLogAttr(t, handler, "component", "segmenter")
		assert.Equal(t, 1, handler.Count())
	})

	t.Run("prefixes grouped attributes", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.WithGroup("file").Info("parsed", slog.Int("trials", 3))

		assert.True(t, handler.ContainsAttr("file.trials", int64(3)))
	})

	t.Run("filters by level and clears", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")

		assert.Len(t, handler.GetRecordsByLevel(slog.LevelInfo), 1)
		AssertLogContains(t, handler, slog.LevelWarn, "warn")
		AssertNoErrors(t, handler)

		handler.Clear()
		assert.Zero(t, handler.Count())
	})
}

func TestASCBuilder(t *testing.T) {
	asc := NewASC(500).
		StartTrial("7").
		Var("set_size", 4).
		Samples(1000, math.NaN()).
		Blink(2).
		EndTrial()

	lines := strings.Split(strings.TrimSpace(asc.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 9)
	tail := lines[len(lines)-9:]

	assert.Equal(t, "MSG\t1000 start_trial 7", tail[0])
	assert.Equal(t, "MSG\t1000 var set_size 4", tail[1])
	assert.Equal(t, "1000\t512.0\t384.0\t1000.0\t...", tail[2])
	assert.Equal(t, "1002\t512.0\t384.0\t.\t...", tail[3])
	assert.Equal(t, "SBLINK L 1004", tail[4])
	assert.Equal(t, "1004\t.\t.\t0.0\t...", tail[5])
	assert.Equal(t, "EBLINK L 1004\t1006\t4", tail[7])
	assert.Equal(t, "MSG\t1008 end_trial", tail[8])
	assert.Equal(t, 1008, asc.Now())

	path := asc.WriteFile(t, t.TempDir(), "a.asc")
	require.FileExists(t, path)
}
