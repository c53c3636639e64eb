package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	"eyeparse/internal/shared/testutil"
	"eyeparse/internal/tokenizer"
	"eyeparse/internal/traceprocessor"
	"eyeparse/pkg/contracts/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func processor() *traceprocessor.Processor {
	return traceprocessor.New(traceprocessor.Options{BlinkReconstruct: true, Mode: traceprocessor.ModeAdvanced})
}

// writeLog writes a file with n complete trials, each with a set_size
// property and ten samples
func writeLog(t *testing.T, dir, name string, n int) {
	t.Helper()
	b := testutil.NewASC(1000)
	for i := 0; i < n; i++ {
		b.StartTrial("").Var("set_size", i+1)
		b.Samples(800, 801, 802, 803, 804, 805, 806, 807, 808, 809)
		b.EndTrial()
	}
	b.WriteFile(t, dir, name)
}

// countingSource counts how often a tokenizer is created
type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) factory(path string, policy tokenizer.MalformedPolicy, logger *slog.Logger) RecordSource {
	c.calls.Add(1)
	return tokenizer.New(path, tokenizer.Options{Policy: policy, Logger: logger})
}

// flakySource fails the first failures opens
func flakySource(failures int) (SourceFactory, *atomic.Int32) {
	var opens atomic.Int32
	return func(path string, policy tokenizer.MalformedPolicy, logger *slog.Logger) RecordSource {
		return tokenizer.New(path, tokenizer.Options{
			Policy: policy,
			Logger: logger,
			Open: func(p string) (io.ReadCloser, error) {
				if int(opens.Add(1)) <= failures {
					return nil, errors.New("device busy")
				}
				return os.Open(p)
			},
		})
	}, &opens
}

type failingProcessor struct {
	inner  *traceprocessor.Processor
	failID string
}

func (f failingProcessor) Process(t *domain.Trial) (*domain.Trial, error) {
	if t.ID == f.failID {
		return nil, &apperrors.ProcessingError{TrialID: t.ID, Trace: "ptrace_trial", Reason: "broken"}
	}
	return f.inner.Process(t)
}

func (f failingProcessor) Canonical() string { return "failing" }

func TestParseFolder(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "sub02.asc", 1)
	writeLog(t, dir, "sub01.asc", 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	logger, logs := testutil.NewTestLogger(t)
	res, err := Parse(context.Background(), dir, processor(), WithWorkers(2), WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dataset.Len())
	require.Len(t, res.Files, 2)
	assert.Equal(t, filepath.Join(dir, "sub01.asc"), res.Files[0].Path)
	assert.Equal(t, 2, res.Files[0].Trials)
	assert.Empty(t, res.Failed())
	assert.False(t, res.Cached)

	paths, err := res.Dataset.Column("path")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub01.asc", "sub01.asc", "sub02.asc"},
		[]string{paths[0].Text, paths[1].Text, paths[2].Text}, "rows follow file order, then trial order")

	ids, _ := res.Dataset.Column("trialid")
	assert.Equal(t, 1.0, ids[1].Num)

	pt, err := res.Dataset.Column("ptrace_trial")
	require.NoError(t, err)
	assert.Len(t, pt[0].Series, 10)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "parse complete")
	testutil.AssertNoErrors(t, logs)
}

func TestIncompleteTrialOnlyFailsItsFile(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 2)
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(800, 810).EndTrial()
	b.StartTrial("").Samples(820, 830)
	b.WriteFile(t, dir, "b.asc")
	writeLog(t, dir, "c.asc", 1)

	res, err := Parse(context.Background(), dir, processor())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dataset.Len(), "b.asc contributes no trials")
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, filepath.Join(dir, "b.asc"), failed[0].Path)

	var incomplete *apperrors.IncompleteTrialError
	assert.ErrorAs(t, failed[0].Err, &incomplete)
}

func TestFailedFileIsLoggedWithTraceID(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(820, 830)
	b.WriteFile(t, dir, "b.asc")

	logger, logs := testutil.NewTestLogger(t)
	ctx := infrastructure.WithTraceID(context.Background(), "run-7")
	_, err := Parse(ctx, dir, processor(), WithLogger(logger))
	require.NoError(t, err)

	testutil.AssertLogContains(t, logs, slog.LevelError, "file failed")
	testutil.AssertLogAttr(t, logs, "trace_id", "run-7")
	testutil.AssertLogAttr(t, logs, "error_type", string(apperrors.ErrTypeIncompleteTrial))
	for _, r := range logs.GetRecordsByLevel(slog.LevelError) {
		assert.Contains(t, r.Attrs["error"], "b.asc")
	}
}

func TestMissingFolderIsNotFound(t *testing.T) {
	_, err := Parse(context.Background(), filepath.Join(t.TempDir(), "absent"), processor())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))
}

func TestDisjointTraceNames(t *testing.T) {
	dir := t.TempDir()
	a := testutil.NewASC(1000)
	a.StartTrial("").Msg("start_phase stim").Samples(800, 801, 802).Msg("end_phase stim").EndTrial()
	a.StartTrial("").Msg("start_phase stim").Samples(803, 804).Msg("end_phase stim").EndTrial()
	a.WriteFile(t, dir, "a.asc")
	b := testutil.NewASC(1000)
	b.StartTrial("").Msg("start_phase resp").Samples(900, 901).Msg("end_phase resp").EndTrial()
	b.WriteFile(t, dir, "b.asc")

	res, err := Parse(context.Background(), dir, processor(), WithTrialTraces(false))
	require.NoError(t, err)

	ds := res.Dataset
	assert.Equal(t, 3, ds.Len())
	assert.True(t, ds.Has("ptrace_stim"))
	assert.True(t, ds.Has("ptrace_resp"))
	assert.False(t, ds.Has("ptrace_trial"))

	stim, _ := ds.Column("ptrace_stim")
	resp, _ := ds.Column("ptrace_resp")
	assert.True(t, stim[2].IsUndefined())
	assert.True(t, resp[0].IsUndefined())
	assert.True(t, resp[1].IsUndefined())
	assert.Equal(t, []float64{900, 901}, resp[2].Series)
}

func TestParseIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.asc", "b.asc", "c.asc", "d.asc"} {
		writeLog(t, dir, name, 3)
	}

	first, err := Parse(context.Background(), dir, processor(), WithWorkers(4))
	require.NoError(t, err)
	second, err := Parse(context.Background(), dir, processor(), WithWorkers(1))
	require.NoError(t, err)

	assert.Equal(t, first.Dataset.Fingerprint(), second.Dataset.Fingerprint())
	if diff := cmp.Diff(first.Dataset.Columns(), second.Dataset.Columns()); diff != "" {
		t.Errorf("columns differ (-first +second):\n%s", diff)
	}
}

func TestCachedParseSkipsTokenizer(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 2)
	writeLog(t, dir, "b.asc", 1)

	store, err := cache.New(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	var src countingSource

	first, err := Parse(context.Background(), dir, processor(), WithCache(store), WithSourceFactory(src.factory))
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.CacheKey)
	assert.Equal(t, int32(2), src.calls.Load())

	second, err := Parse(context.Background(), dir, processor(), WithCache(store), WithSourceFactory(src.factory))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, int32(2), src.calls.Load(), "tokenizer is not invoked on a cache hit")
	assert.Equal(t, first.Dataset.Fingerprint(), second.Dataset.Fingerprint())

	// a different configuration is a different entry
	third, err := Parse(context.Background(), dir, traceprocessor.New(traceprocessor.Options{Downsample: 2}),
		WithCache(store), WithSourceFactory(src.factory))
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.CacheKey, third.CacheKey)
}

func TestCachedParseKeepsFailedFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 2)
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(820, 830)
	b.WriteFile(t, dir, "b.asc")

	store, err := cache.New(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	first, err := Parse(context.Background(), dir, processor(), WithCache(store))
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Len(t, first.Failed(), 1)

	second, err := Parse(context.Background(), dir, processor(), WithCache(store))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.Len(t, second.Files, 2)
	assert.Equal(t, 2, second.Files[0].Trials)

	failed := second.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, filepath.Join(dir, "b.asc"), failed[0].Path)
	assert.Equal(t, apperrors.ErrTypeIncompleteTrial, apperrors.TypeOf(failed[0].Err))
	assert.Equal(t, first.Failed()[0].Err.Error(), failed[0].Err.Error())
}

func TestConcurrentCachedParsesReportFailures(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 1)
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(820, 830)
	b.WriteFile(t, dir, "b.asc")

	store, err := cache.New(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 6)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := Parse(context.Background(), dir, processor(), WithCache(store))
			if assert.NoError(t, err) {
				results[i] = res
			}
		}()
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res, "call %d", i)
		require.Len(t, res.Failed(), 1, "call %d cached=%v", i, res.Cached)
		assert.Equal(t, apperrors.ErrTypeIncompleteTrial, apperrors.TypeOf(res.Failed()[0].Err))
	}
}

func TestProcessingErrorDropsTrial(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 3)

	res, err := Parse(context.Background(), dir, failingProcessor{inner: processor(), failID: "1"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Dataset.Len())
	require.Len(t, res.Files, 1)
	assert.Nil(t, res.Files[0].Err)
	require.Len(t, res.Files[0].TrialErrors, 1)
	var perr *apperrors.ProcessingError
	assert.ErrorAs(t, res.Files[0].TrialErrors[0], &perr)
}

func TestReadRetries(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 1)

	t.Run("recovers", func(t *testing.T) {
		factory, opens := flakySource(2)
		res, err := Parse(context.Background(), dir, processor(),
			WithSourceFactory(factory), WithReadRetries(2, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dataset.Len())
		assert.Equal(t, int32(3), opens.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		factory, opens := flakySource(10)
		store, err := cache.New(cache.Options{Dir: t.TempDir()})
		require.NoError(t, err)

		res, err := Parse(context.Background(), dir, processor(),
			WithSourceFactory(factory), WithReadRetries(1, 0), WithCache(store))
		require.NoError(t, err)
		assert.Equal(t, int32(2), opens.Load())
		require.Len(t, res.Failed(), 1)
		assert.True(t, apperrors.IsRetryable(res.Failed()[0].Err))

		st, err := store.Stats()
		require.NoError(t, err)
		assert.Zero(t, st.Entries, "results with transient failures are not cached")
	})
}

func TestStrictAlignmentAbortsParse(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(1, 2, 3).EndTrial()
	b.StartTrial("").Samples(1, 2).EndTrial()
	b.WriteFile(t, dir, "a.asc")

	_, err := Parse(context.Background(), dir, processor(), WithStrictAlignment(true))
	var aerr *apperrors.AssemblyError
	require.ErrorAs(t, err, &aerr)
}

func TestMalformedLines(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewASC(1000)
	b.StartTrial("").Samples(800, 801).Line("garbage here").Samples(802).EndTrial()
	b.WriteFile(t, dir, "a.asc")

	res, err := Parse(context.Background(), dir, processor())
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, apperrors.ErrTypeMalformedLog, apperrors.TypeOf(res.Failed()[0].Err))

	res, err = Parse(context.Background(), dir, processor(), WithMalformedPolicy(tokenizer.PolicySkip))
	require.NoError(t, err)
	assert.Empty(t, res.Failed())
	assert.Equal(t, 1, res.Files[0].Skipped)
	assert.Equal(t, 1, res.Dataset.Len())
}

func TestCancelledParse(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, dir, processor())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMissingFolder(t *testing.T) {
	_, err := Parse(context.Background(), filepath.Join(t.TempDir(), "nope"), processor())
	assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))
}

func TestProgressEvents(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.asc", 1)
	writeLog(t, dir, "b.asc", 2)

	var (
		mu     sync.Mutex
		events []Event
	)
	_, err := Parse(context.Background(), dir, processor(), WithProgress(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	require.NoError(t, err)

	require.Len(t, events, 6)
	assert.Equal(t, EventParseStarted, events[0].Type)
	assert.Equal(t, 2, events[0].Files)
	assert.Equal(t, EventParseDone, events[5].Type)
	assert.Equal(t, 3, events[5].Trials)

	done := 0
	for _, e := range events {
		if e.Type == EventFileDone {
			done++
		}
	}
	assert.Equal(t, 2, done)
}

func TestWithParserConfig(t *testing.T) {
	cfg := config.Default().Parser
	cfg.StartMarker = "TRIALID"
	cfg.EndMarker = "TRIAL_END"
	cfg.Workers = 0

	opts := newOptionValues(WithParserConfig(cfg))
	assert.Equal(t, "TRIALID", opts.startMarker)
	assert.Equal(t, 1, opts.workers)
	assert.Equal(t, tokenizer.PolicyAbort, opts.policy)
	assert.Contains(t, opts.canonical(), "start=TRIALID")
}
