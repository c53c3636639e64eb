package edfconv

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eyeparse/internal/errors"
)

type testSignal struct {
	label      string
	physMin    string
	physMax    string
	digMin     string
	digMax     string
	samples    int
	annotation bool
}

type testFile struct {
	format   Format
	reserved string
	duration string
	records  int
	signals  []testSignal
	// data holds one raw data record per entry
	data [][]byte
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func (tf testFile) bytes() []byte {
	var b strings.Builder
	if tf.format == FormatBDF {
		b.WriteString("\xffBIOSEMI")
	} else {
		b.WriteString(pad("0", 8))
	}
	b.WriteString(pad("X F 01-JAN-1990 Subject, One", 80))
	b.WriteString(pad("Startdate 01-JAN-2024 lab", 80))
	b.WriteString("01.01.24")
	b.WriteString("10.00.00")
	b.WriteString(pad("768", 8))
	b.WriteString(pad(tf.reserved, 44))
	b.WriteString(pad(strconv.Itoa(tf.records), 8))
	b.WriteString(pad(tf.duration, 8))
	b.WriteString(pad(strconv.Itoa(len(tf.signals)), 4))

	col := func(width int, get func(s testSignal) string) {
		for _, s := range tf.signals {
			b.WriteString(pad(get(s), width))
		}
	}
	col(16, func(s testSignal) string { return s.label })
	col(80, func(s testSignal) string { return "AgAgCl electrode" })
	col(8, func(s testSignal) string {
		if s.annotation {
			return ""
		}
		return "uV"
	})
	col(8, func(s testSignal) string { return s.physMin })
	col(8, func(s testSignal) string { return s.physMax })
	col(8, func(s testSignal) string { return s.digMin })
	col(8, func(s testSignal) string { return s.digMax })
	col(80, func(s testSignal) string { return "HP:0.1Hz" })
	col(8, func(s testSignal) string { return strconv.Itoa(s.samples) })
	col(32, func(s testSignal) string { return "" })

	out := []byte(b.String())
	for _, rec := range tf.data {
		out = append(out, rec...)
	}
	return out
}

func edfSamples(vals ...int16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func tal(n int, s string) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func eegSignal(label string, samples int) testSignal {
	return testSignal{label: label, physMin: "-100", physMax: "100", digMin: "-100", digMax: "100", samples: samples}
}

func plainEDF() testFile {
	return testFile{
		format:   FormatEDF,
		duration: "1",
		records:  2,
		signals:  []testSignal{eegSignal("Fpz-Cz", 2), eegSignal("Pz-Oz", 1)},
		data: [][]byte{
			concat(edfSamples(10, 20), edfSamples(5)),
			concat(edfSamples(30, 40), edfSamples(-7)),
		},
	}
}

func TestConvertEDF(t *testing.T) {
	path := writeFile(t, "rec01.edf", plainEDF().bytes())

	res, err := Convert(context.Background(), path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 0, res.Annotations)
	assert.Equal(t, time.Second, res.Header.RecordDuration)
	assert.False(t, res.Header.Plus)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "rec01_data.txt"), res.DataPath)

	assert.Equal(t, []string{
		"Time,1,2",
		"0.000000000,10.000000,5.000000",
		"0.500000000,20.000000,",
		"1.000000000,30.000000,-7.000000",
		"1.500000000,40.000000,",
	}, readLines(t, res.DataPath))

	header := readLines(t, res.HeaderPath)
	require.Len(t, header, 2)
	assert.Equal(t, "Version,Patient,Recording,Startdate,Startime,Bytes,Reserved,NumRec,Duration,NumSig", header[0])
	fields := strings.Split(header[1], ",")
	require.Len(t, fields, 10)
	assert.Equal(t, "0       ", fields[0])
	assert.Equal(t, "X F 01-JAN-1990 Subject' One", strings.TrimSpace(fields[1]))
	assert.Equal(t, "2", fields[7])
	assert.Equal(t, "2", fields[9])

	signals := readLines(t, res.SignalsPath)
	require.Len(t, signals, 3)
	first := strings.Split(signals[1], ",")
	require.Len(t, first, 11)
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "Fpz-Cz", strings.TrimSpace(first[1]))
	assert.Equal(t, "-100.000000", first[4])
	assert.Equal(t, "100.000000", first[5])
	assert.Equal(t, "2", first[9])

	assert.Equal(t, []string{"Onset,Duration,Annotation"}, readLines(t, res.AnnotationsPath))
}

func TestConvertEDFPlusAnnotations(t *testing.T) {
	annot := testSignal{label: "EDF Annotations", physMin: "-1", physMax: "1", digMin: "-32768", digMax: "32767", samples: 30, annotation: true}
	tf := testFile{
		format:   FormatEDF,
		reserved: "EDF+D",
		duration: "1",
		records:  2,
		signals:  []testSignal{eegSignal("Fpz-Cz", 2), annot},
		data: [][]byte{
			concat(edfSamples(1, 2), tal(60, "+0\x14\x14\x00+0.5\x151.5\x14Eyes, closed\x14\x00")),
			concat(edfSamples(3, 4), tal(60, "+2\x14\x14\x00+2.25\x14Lights off\x14Caf\xc3\xa9\x14\x00")),
		},
	}
	path := writeFile(t, "night.edf", tf.bytes())
	out := t.TempDir()

	res, err := Convert(context.Background(), path, Options{OutputDir: out})
	require.NoError(t, err)
	assert.True(t, res.Header.Plus)
	assert.Equal(t, filepath.Join(out, "night_annotations.txt"), res.AnnotationsPath)
	assert.Equal(t, 3, res.Annotations)

	assert.Equal(t, []string{
		"Onset,Duration,Annotation",
		"+0.5,1.5,Eyes. closed",
		"+2.25,,Lights off",
		"+2.25,,Café",
	}, readLines(t, res.AnnotationsPath))

	assert.Equal(t, []string{
		"Time,1",
		"0.000000000,1.000000",
		"0.500000000,2.000000",
		"2.000000000,3.000000",
		"2.500000000,4.000000",
	}, readLines(t, res.DataPath))

	signals := readLines(t, res.SignalsPath)
	assert.Len(t, signals, 2)

	header := strings.Split(readLines(t, res.HeaderPath)[1], ",")
	assert.Equal(t, "1", header[9])
}

func TestConvertBDF(t *testing.T) {
	tf := testFile{
		format:   FormatBDF,
		duration: "0.5",
		records:  1,
		signals: []testSignal{{
			label: "Status", physMin: "-8388608", physMax: "8388607",
			digMin: "-8388608", digMax: "8388607", samples: 2,
		}},
		data: [][]byte{{0xfe, 0xff, 0xff, 0x10, 0x00, 0x00}},
	}
	path := writeFile(t, "eeg.BDF", tf.bytes())

	res, err := Convert(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatBDF, res.Header.Format)

	assert.Equal(t, []string{
		"Time,1",
		"0.000000000,-2.000000",
		"0.250000000,16.000000",
	}, readLines(t, res.DataPath))
	assert.True(t, strings.HasPrefix(readLines(t, res.HeaderPath)[1], ".BIOSEMI,"))
}

func TestConvertErrors(t *testing.T) {
	zeroSignals := plainEDF()
	zeroSignals.signals = nil
	zeroSignals.data = nil

	badVersion := plainEDF().bytes()
	copy(badVersion, "1       ")

	noRecords := plainEDF()
	noRecords.records = 0

	noAnnotations := plainEDF()
	noAnnotations.reserved = "EDF+C"

	full := plainEDF().bytes()

	tests := []struct {
		name   string
		file   string
		data   []byte
		reason string
	}{
		{"extension", "rec.txt", full, "file extension"},
		{"signal count", "rec.edf", zeroSignals.bytes(), "number of signals in header is 0"},
		{"version", "rec.edf", badVersion, "EDF header has unknown version"},
		{"bdf version", "rec.bdf", full, "BDF header has unknown version"},
		{"data records", "rec.edf", noRecords.bytes(), "number of data records in header is 0"},
		{"annotation signal", "rec.edf", noAnnotations.bytes(), "marked as EDF+ but it has no annotation signal"},
		{"truncated data", "rec.edf", full[:len(full)-3], "truncated data record 2"},
		{"truncated header", "rec.edf", full[:100], "truncated header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)
			_, err := Convert(context.Background(), path, Options{})

			var convErr *apperrors.ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Contains(t, convErr.Reason, tt.reason)
		})
	}
}

func TestConvertMissingFileIsReadError(t *testing.T) {
	_, err := Convert(context.Background(), filepath.Join(t.TempDir(), "absent.edf"), Options{})
	assert.True(t, apperrors.IsRetryable(err))
}

func TestConvertTruncatedLeavesNoDataFile(t *testing.T) {
	full := plainEDF().bytes()
	path := writeFile(t, "rec.edf", full[:len(full)-1])

	_, err := Convert(context.Background(), path, Options{})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(path), "rec_data.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvertCancelled(t *testing.T) {
	path := writeFile(t, "rec.edf", plainEDF().bytes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Convert(ctx, path, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFixed(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1", 1_000_000_000},
		{"0.5", 500_000_000},
		{"  +12.25", 12_250_000_000},
		{"-0.001", -1_000_000},
		{"0.1234567891", 123_456_789},
		{"3\x14", 3_000_000_000},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseFixed(tt.in), tt.in)
	}
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "0.000000000", formatFixed(0))
	assert.Equal(t, "12.250000000", formatFixed(12_250_000_000))
	assert.Equal(t, "-0.500000000", formatFixed(-500_000_000))
}

func TestLatin1Text(t *testing.T) {
	assert.Equal(t, "plain", latin1Text([]byte("plain")))
	assert.Equal(t, "a.b.c", latin1Text([]byte("a,b\x01c")))
	assert.Equal(t, "Café", latin1Text([]byte("Caf\xc3\xa9")))
	assert.Equal(t, "x.y", latin1Text([]byte("x\xd0\x96y")))
	assert.Equal(t, "cut ", latin1Text([]byte("cut \xe2\x82\xac more")))
}

func TestParseTALs(t *testing.T) {
	got := parseTALs(tal(64, "+0\x14\x14\x00+1\x150.2\x14A\x14B\x14\x00+3\x14incomplete"))
	assert.Equal(t, []Annotation{
		{Onset: "+1", Duration: "0.2", Text: "A"},
		{Onset: "+1", Duration: "0.2", Text: "B"},
	}, got)
}
