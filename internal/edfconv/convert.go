package edfconv

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/files"
	"eyeparse/internal/infrastructure"
)

// Options configures a conversion
type Options struct {
	// OutputDir receives the text files. Empty means next to the input.
	OutputDir string
	Logger    *slog.Logger
}

// Result lists the files written by Convert
type Result struct {
	Header          *Header
	HeaderPath      string
	SignalsPath     string
	AnnotationsPath string
	DataPath        string
	Records         int
	Annotations     int
	Duration        time.Duration
}

// Convert writes an EDF(+) or BDF(+) recording as four comma separated text
// files: <base>_header.txt, <base>_signals.txt, <base>_annotations.txt and
// <base>_data.txt. Annotation channels are left out of the signal and data
// files; their contents go to the annotations file.
func Convert(ctx context.Context, path string, opts Options) (*Result, error) {
	start := time.Now()
	logger := infrastructure.WithComponent(opts.Logger, "edfconv")

	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &apperrors.ReadError{Path: path, Err: err}
	}
	defer f.Close()
	r := bufio.NewReader(f)

	h, err := readHeader(path, format, r)
	if err != nil {
		return nil, err
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	base := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	res := &Result{
		Header:          h,
		HeaderPath:      base + "_header.txt",
		SignalsPath:     base + "_signals.txt",
		AnnotationsPath: base + "_annotations.txt",
		DataPath:        base + "_data.txt",
	}

	logger.Info("converting recording",
		slog.String("path", path),
		slog.String("format", format.String()),
		slog.Bool("plus", h.Plus),
		slog.Int("signals", len(h.Signals)),
		slog.Int("records", h.DataRecords))

	if err := files.WriteAtomic(res.HeaderPath, func(w io.Writer) error {
		return writeHeader(w, h)
	}); err != nil {
		return nil, err
	}
	if err := files.WriteAtomic(res.SignalsPath, func(w io.Writer) error {
		return writeSignals(w, h)
	}); err != nil {
		return nil, err
	}

	c := &converter{path: path, header: h, data: h.DataSignals(), annotations: h.AnnotationSignals()}
	err = files.WriteAtomic(res.AnnotationsPath, func(aw io.Writer) error {
		return files.WriteAtomic(res.DataPath, func(dw io.Writer) error {
			return c.run(ctx, r, aw, dw)
		})
	})
	if err != nil {
		return nil, err
	}

	res.Records = c.records
	res.Annotations = c.annotationCount
	res.Duration = time.Since(start)
	logger.Info("recording converted",
		slog.String("path", path),
		slog.Int("records", res.Records),
		slog.Int("annotations", res.Annotations),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func formatOf(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".edf", ".EDF":
		return FormatEDF, nil
	case ".bdf", ".BDF":
		return FormatBDF, nil
	default:
		return 0, conversionError(path, `file extension must be ".edf", ".EDF", ".bdf" or ".BDF"`)
	}
}

func readHeader(path string, format Format, r io.Reader) (*Header, error) {
	first := make([]byte, blockSize)
	if _, err := io.ReadFull(r, first); err != nil {
		return nil, truncated(path, "header", err)
	}
	ns := peekSignalCount(first)
	if ns < 1 || ns > maxSignals {
		return nil, conversionError(path, "number of signals in header is "+strconv.Itoa(ns))
	}
	raw := make([]byte, (ns+1)*blockSize)
	copy(raw, first)
	if _, err := io.ReadFull(r, raw[blockSize:]); err != nil {
		return nil, truncated(path, "signal header", err)
	}
	return parseHeader(path, format, raw)
}

func writeHeader(w io.Writer, h *Header) error {
	version := h.field(0, 8)
	if h.Format == FormatBDF {
		version = "." + h.field(1, 7)
	}
	_, err := fmt.Fprintf(w, "Version,Patient,Recording,Startdate,Startime,Bytes,Reserved,NumRec,Duration,NumSig\n"+
		"%s,%s,%s,%s,%s,%s,%s,%d,%s,%d\n",
		version, h.field(8, 80), h.field(88, 80), h.field(168, 8), h.field(176, 8),
		h.field(184, 8), h.field(192, 44), h.DataRecords, h.field(244, 8), len(h.DataSignals()))
	return err
}

func writeSignals(w io.Writer, h *Header) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("Signal,Label,Transducer,Units,Min,Max,Dmin,Dmax,PreFilter,Smp/Rec,Reserved\n")
	for _, s := range h.DataSignals() {
		i := s.index
		fmt.Fprintf(bw, "%d,%s,%s,%s,%f,%f,%d,%d,%s,%d,%s\n",
			i+1, h.signalField(0, 16, i), h.signalField(16, 80, i), h.signalField(96, 8, i),
			s.PhysicalMin, s.PhysicalMax, s.DigitalMin, s.DigitalMax,
			h.signalField(136, 80, i), s.SamplesPerRecord, h.signalField(224, 32, i))
	}
	return bw.Flush()
}

type converter struct {
	path        string
	header      *Header
	data        []Signal
	annotations []Signal

	records         int
	annotationCount int
}

func (c *converter) run(ctx context.Context, r io.Reader, annotations, data io.Writer) error {
	aw := bufio.NewWriter(annotations)
	dw := bufio.NewWriter(data)
	aw.WriteString("Onset,Duration,Annotation\n")
	dw.WriteString("Time")
	for i := range c.data {
		dw.WriteString("," + strconv.Itoa(i+1))
	}
	dw.WriteByte('\n')

	size := c.header.Format.SampleSize()
	buf := make([]byte, c.header.RecordSize())
	written := make([]int, len(c.data))
	for rec := 0; rec < c.header.DataRecords; rec++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return truncated(c.path, "data record "+strconv.Itoa(rec+1), err)
		}

		elapsed := int64(rec) * int64(c.header.RecordDuration)
		if c.header.Plus {
			elapsed = recordOnset(c.channel(buf, c.annotations[0], size))
			for _, s := range c.annotations {
				for _, a := range parseTALs(c.channel(buf, s, size)) {
					aw.WriteString(a.Onset + "," + a.Duration + "," + a.Text + "\n")
					c.annotationCount++
				}
			}
		}

		c.writeRecord(dw, buf, elapsed, written)
		c.records++
	}

	if err := aw.Flush(); err != nil {
		return err
	}
	return dw.Flush()
}

// writeRecord interleaves signals with different sample rates. Each row is
// stamped with the earliest pending sample time; signals with no sample at
// that time leave their cell empty.
func (c *converter) writeRecord(w *bufio.Writer, buf []byte, elapsed int64, written []int) {
	if len(c.data) == 0 {
		return
	}
	clear(written)
	size := c.header.Format.SampleSize()
	for {
		next := int64(math.MaxInt64)
		for i, s := range c.data {
			next = min(next, int64(written[i])*s.timeStep)
		}

		w.WriteString(formatFixed(elapsed + next))
		full := true
		for i, s := range c.data {
			w.WriteByte(',')
			if written[i] < s.SamplesPerRecord && int64(written[i])*s.timeStep == next {
				v := s.physical(buf, written[i], size)
				w.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
				written[i]++
			}
			if written[i] < s.SamplesPerRecord {
				full = false
			}
		}
		w.WriteByte('\n')
		if full {
			return
		}
	}
}

func (c *converter) channel(buf []byte, s Signal, size int) []byte {
	return buf[s.bufOffset*size : (s.bufOffset+s.SamplesPerRecord)*size]
}

// physical converts the n-th digital sample of s to physical units.
// Samples are little endian two's complement.
func (s Signal) physical(buf []byte, n, size int) float64 {
	at := (s.bufOffset + n) * size
	var digital int32
	if size == 2 {
		digital = int32(int16(binary.LittleEndian.Uint16(buf[at:])))
	} else {
		digital = int32(uint32(buf[at])|uint32(buf[at+1])<<8|uint32(buf[at+2])<<16) << 8 >> 8
	}
	return (float64(digital) + s.offset) * s.sense
}

func conversionError(path, reason string) error {
	return &apperrors.ConversionError{Path: path, Reason: reason}
}

func truncated(path, what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return conversionError(path, "truncated "+what)
	}
	return &apperrors.ReadError{Path: path, Err: err}
}
