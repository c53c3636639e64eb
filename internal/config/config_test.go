package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ".asc", cfg.Parser.Extension)
				assert.Equal(t, "start_trial", cfg.Parser.StartMarker)
				assert.Equal(t, "end_trial", cfg.Parser.EndMarker)
				assert.Equal(t, PolicyAbort, cfg.Parser.MalformedPolicy)
				assert.True(t, cfg.Parser.TrialTraces)
				assert.Equal(t, 2, cfg.Parser.ReadRetries)

				assert.False(t, cfg.Processor.BlinkReconstruct)
				assert.Equal(t, 1, cfg.Processor.Downsample)
				assert.Equal(t, ModeAdvanced, cfg.Processor.Mode)
				assert.Equal(t, 21, cfg.Processor.Blink.SmoothWindow)
				assert.Equal(t, 500, cfg.Processor.Blink.MaxDur)

				assert.False(t, cfg.Cache.Enabled)
				assert.NotEmpty(t, cfg.Cache.Dir)

				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "eyeparse", cfg.OTel.ServiceName)
			},
		},
		{
			name: "environment variables",
			env: map[string]string{
				"EYEPARSE_PROCESSOR_BLINKRECONSTRUCT": "true",
				"EYEPARSE_PROCESSOR_DOWNSAMPLE":       "10",
				"EYEPARSE_PROCESSOR_MODE":             "basic",
				"EYEPARSE_PROCESSOR_BLINK_MARGIN":     "4",
				"EYEPARSE_PARSER_MALFORMED_POLICY":    "skip",
				"EYEPARSE_PARSER_WORKERS":             "3",
				"EYEPARSE_CACHE_ENABLED":              "true",
				"EYEPARSE_CACHE_DIR":                  "/tmp/eyeparse-test",
				"EYEPARSE_SERVER_RATE_LIMIT_BURST":    "5",
				"EYEPARSE_LOGGING_LEVEL":              "debug",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Processor.BlinkReconstruct)
				assert.Equal(t, 10, cfg.Processor.Downsample)
				assert.Equal(t, ModeBasic, cfg.Processor.Mode)
				assert.Equal(t, 4, cfg.Processor.Blink.Margin)
				assert.Equal(t, PolicySkip, cfg.Parser.MalformedPolicy)
				assert.Equal(t, 3, cfg.Parser.Workers)
				assert.True(t, cfg.Cache.Enabled)
				assert.Equal(t, "/tmp/eyeparse-test", cfg.Cache.Dir)
				assert.Equal(t, 5, cfg.Server.RateLimit.Burst)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "file with environment override",
			env: map[string]string{
				"EYEPARSE_SERVER_PORT": "7070",
			},
			file: `
server:
  port: 6060
  read_timeout: 20s
processor:
  downsample: 4
  blink:
    vt_start: 12.5
parser:
  start_marker: TRIALID
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 4, cfg.Processor.Downsample)
				assert.Equal(t, 12.5, cfg.Processor.Blink.VTStart)
				assert.Equal(t, 5.0, cfg.Processor.Blink.VTEnd)
				assert.Equal(t, "TRIALID", cfg.Parser.StartMarker)
				assert.Equal(t, "end_trial", cfg.Parser.EndMarker)
			},
		},
		{
			name:    "unknown key in file",
			file:    "parser:\n  extention: .asc\n",
			wantErr: true,
		},
		{
			name:    "invalid mode",
			env:     map[string]string{"EYEPARSE_PROCESSOR_MODE": "fancy"},
			wantErr: true,
		},
		{
			name:    "zero downsample",
			env:     map[string]string{"EYEPARSE_PROCESSOR_DOWNSAMPLE": "0"},
			wantErr: true,
		},
		{
			name:    "invalid port",
			env:     map[string]string{"EYEPARSE_SERVER_PORT": "99999"},
			wantErr: true,
		},
		{
			name:    "same start and end marker",
			env:     map[string]string{"EYEPARSE_PARSER_END_MARKER": "start_trial"},
			wantErr: true,
		},
		{
			name:    "extension without dot",
			env:     map[string]string{"EYEPARSE_PARSER_EXTENSION": "asc"},
			wantErr: true,
		},
		{
			name:    "text log format",
			env:     map[string]string{"EYEPARSE_LOGGING_FORMAT": "text"},
			wantErr: true,
		},
		{
			name:    "malformed env value",
			env:     map[string]string{"EYEPARSE_PARSER_WORKERS": "many"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "eyeparse.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o644))
			}

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Cache.Enabled = true
	cfg.Cache.Dir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""
	assert.Error(t, cfg.Validate())
}

func TestResolveFolder(t *testing.T) {
	dir := t.TempDir()

	got, err := ResolveFolder(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	file := filepath.Join(dir, "a.asc")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = ResolveFolder(file)
	assert.Error(t, err)

	_, err = ResolveFolder(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = ResolveFolder("")
	assert.Error(t, err)
}

func TestDefaultCacheDir(t *testing.T) {
	assert.Equal(t, CacheDirName, filepath.Base(DefaultCacheDir()))
}
