package config

import "time"

// Application constants
const (
	AppName    = "eyeparse"
	AppVersion = "0.4.0"
	EnvPrefix  = "EYEPARSE"

	// Log grammar defaults
	DefaultExtension   = ".asc"
	DefaultStartMarker = "start_trial"
	DefaultEndMarker   = "end_trial"
	DefaultVarMarker   = "var"

	// Malformed line policies
	PolicyAbort = "abort"
	PolicySkip  = "skip"

	// Trace processor modes
	ModeBasic    = "basic"
	ModeAdvanced = "advanced"

	// Downsampling methods
	DownsampleMean     = "mean"
	DownsampleDecimate = "decimate"

	// Retry
	DefaultReadRetries = 2
	DefaultRetryDelay  = 50 * time.Millisecond

	// Cache
	CacheDirName    = "eyeparse"
	DefaultCacheAge = 30 * 24 * time.Hour

	// Server
	DefaultPort            = 8080
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRateLimit       = 10
	DefaultBurstSize       = 20
	WebSocketPingPeriod    = 30 * time.Second
	WebSocketPongWait      = 60 * time.Second
)
