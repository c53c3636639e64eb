package tokenizer

import (
	"bufio"
	"context"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync/atomic"

	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	"eyeparse/pkg/contracts/domain"
)

// MalformedPolicy decides what happens to lines that match no grammar
type MalformedPolicy string

const (
	// PolicyAbort stops the iteration with a MalformedLogError
	PolicyAbort MalformedPolicy = "abort"
	// PolicySkip logs and counts the line, then continues
	PolicySkip MalformedPolicy = "skip"
)

// maxLineSize bounds a single log line. Converter headers and long
// messages stay far below it.
const maxLineSize = 1 << 20

// cancelCheckInterval is how many lines are read between context checks
const cancelCheckInterval = 4096

// Options configures a Tokenizer
type Options struct {
	Policy MalformedPolicy
	Logger *slog.Logger

	// Open replaces os.Open, mainly for tests
	Open func(path string) (io.ReadCloser, error)
}

// Tokenizer streams the records of one log file
type Tokenizer struct {
	path    string
	policy  MalformedPolicy
	logger  *slog.Logger
	open    func(path string) (io.ReadCloser, error)
	skipped atomic.Int64
}

// New creates a tokenizer for path. The file is not opened until iteration.
func New(path string, opts Options) *Tokenizer {
	t := &Tokenizer{
		path:   path,
		policy: opts.Policy,
		logger: infrastructure.WithComponent(opts.Logger, "tokenizer"),
		open:   opts.Open,
	}
	if t.policy == "" {
		t.policy = PolicyAbort
	}
	if t.open == nil {
		t.open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}
	return t
}

// Path returns the file being tokenized
func (t *Tokenizer) Path() string {
	return t.path
}

// Skipped returns how many malformed lines the most recent iteration skipped
func (t *Tokenizer) Skipped() int {
	return int(t.skipped.Load())
}

// Records returns the records of the file in order. Each call to the
// returned sequence re-opens the file, so the sequence can be ranged over
// any number of times. An error ends the sequence: it is yielded once
// with a zero record.
func (t *Tokenizer) Records(ctx context.Context) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		t.skipped.Store(0)
		if err := ctx.Err(); err != nil {
			yield(domain.RawRecord{}, err)
			return
		}

		f, err := t.open(t.path)
		if err != nil {
			yield(domain.RawRecord{}, &apperrors.ReadError{Path: t.path, Err: err})
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		var state lineState
		n := 0
		for scanner.Scan() {
			n++
			if n%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					yield(domain.RawRecord{}, err)
					return
				}
			}

			line := scanner.Text()
			rec, ok, reason := parseLine(line, n, &state)
			if reason != "" {
				merr := &apperrors.MalformedLogError{Path: t.path, Line: n, Text: line, Reason: reason}
				if t.policy == PolicySkip {
					t.skipped.Add(1)
					t.logger.WarnContext(ctx, "skipping malformed line",
						slog.String("path", t.path),
						slog.Int("line", n),
						slog.String("reason", reason))
					continue
				}
				yield(domain.RawRecord{}, merr)
				return
			}
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(domain.RawRecord{}, &apperrors.ReadError{Path: t.path, Err: err})
		}
	}
}
