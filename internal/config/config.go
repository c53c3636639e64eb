package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Parser    ParserConfig    `yaml:"parser" envconfig:"PARSER"`
	Processor ProcessorConfig `yaml:"processor" envconfig:"PROCESSOR"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	OTel      OTelConfig      `yaml:"otel" envconfig:"OTEL"`
}

// ParserConfig controls tokenizing, segmentation and the per-file workers
type ParserConfig struct {
	Extension       string        `yaml:"extension" envconfig:"EXTENSION" validate:"required,startswith=."`
	StartMarker     string        `yaml:"start_marker" envconfig:"START_MARKER" validate:"required"`
	EndMarker       string        `yaml:"end_marker" envconfig:"END_MARKER" validate:"required,nefield=StartMarker"`
	VarMarker       string        `yaml:"var_marker" envconfig:"VAR_MARKER" validate:"required"`
	MalformedPolicy string        `yaml:"malformed_policy" envconfig:"MALFORMED_POLICY" validate:"oneof=abort skip"`
	Eye             string        `yaml:"eye" envconfig:"EYE" validate:"oneof=left right"`
	TrialTraces     bool          `yaml:"trial_traces" envconfig:"TRIAL_TRACES"`
	StrictAlignment bool          `yaml:"strict_alignment" envconfig:"STRICT_ALIGNMENT"`
	Workers         int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=1024"`
	ReadRetries     int           `yaml:"read_retries" envconfig:"READ_RETRIES" validate:"min=0,max=10"`
	RetryDelay      time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" validate:"min=0"`
}

// ProcessorConfig configures the trace processor
type ProcessorConfig struct {
	BlinkReconstruct bool        `yaml:"blinkreconstruct" envconfig:"BLINKRECONSTRUCT"`
	Downsample       int         `yaml:"downsample" envconfig:"DOWNSAMPLE" validate:"min=1"`
	DownsampleMethod string      `yaml:"downsample_method" envconfig:"DOWNSAMPLE_METHOD" validate:"oneof=mean decimate"`
	Mode             string      `yaml:"mode" envconfig:"MODE" validate:"oneof=basic advanced"`
	Blink            BlinkConfig `yaml:"blink" envconfig:"BLINK"`
}

// BlinkConfig holds blink reconstruction thresholds. Durations and margins
// are counted in samples, velocities in pupil units per sample.
type BlinkConfig struct {
	Margin       int     `yaml:"margin" envconfig:"MARGIN" validate:"min=0"`
	GapMargin    int     `yaml:"gap_margin" envconfig:"GAP_MARGIN" validate:"min=0"`
	MaxDur       int     `yaml:"maxdur" envconfig:"MAXDUR" validate:"min=1"`
	SmoothWindow int     `yaml:"smooth_winlen" envconfig:"SMOOTH_WINLEN" validate:"min=1"`
	VTStart      float64 `yaml:"vt_start" envconfig:"VT_START" validate:"gt=0"`
	VTEnd        float64 `yaml:"vt_end" envconfig:"VT_END" validate:"gt=0"`
}

// CacheConfig controls the on-disk dataset cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" envconfig:"ENABLED"`
	Dir     string        `yaml:"dir" envconfig:"DIR" validate:"required_if=Enabled true"`
	MaxAge  time.Duration `yaml:"max_age" envconfig:"MAX_AGE" validate:"min=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"eq=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	DataDir         string          `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// OTelConfig controls tracing and metrics
type OTelConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceToStdout  bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Parser: ParserConfig{
			Extension:       DefaultExtension,
			StartMarker:     DefaultStartMarker,
			EndMarker:       DefaultEndMarker,
			VarMarker:       DefaultVarMarker,
			MalformedPolicy: PolicyAbort,
			Eye:             "left",
			TrialTraces:     true,
			Workers:         runtime.NumCPU(),
			ReadRetries:     DefaultReadRetries,
			RetryDelay:      DefaultRetryDelay,
		},
		Processor: ProcessorConfig{
			Downsample:       1,
			DownsampleMethod: DownsampleMean,
			Mode:             ModeAdvanced,
			Blink: BlinkConfig{
				Margin:       10,
				GapMargin:    20,
				MaxDur:       500,
				SmoothWindow: 21,
				VTStart:      10,
				VTEnd:        5,
			},
		},
		Cache: CacheConfig{
			Dir:    DefaultCacheDir(),
			MaxAge: DefaultCacheAge,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/eyeparse.log",
		},
		Server: ServerConfig{
			Port:            DefaultPort,
			DataDir:         ".",
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		OTel: OTelConfig{
			ServiceName:    AppName,
			MetricsEnabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// EYEPARSE_* environment variables, in increasing order of precedence.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays the keys present in a YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

var validate = validator.New()

// Validate checks field constraints
func (c *Config) Validate() error {
	return validate.Struct(c)
}
