// Package config holds the session configuration. A JSON file overlays the
// built-in defaults.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config is the fully processed session configuration. All window sizes are
// seconds of media time.
type Config struct {
	// ManifestURL is the playlist to play. Required.
	ManifestURL string
	// MimeType is the media descriptor handed to the sink.
	MimeType string
	// UserAgent is sent on every manifest and segment request when set.
	UserAgent string

	// MaxBufferLength is the forward-buffer size above which eviction runs.
	MaxBufferLength float64
	// LowWaterMark is the forward-buffer level below which the refresh task
	// dispatches more segments.
	LowWaterMark float64
	// RetentionMargin is how much played media survives an eviction.
	RetentionMargin float64

	// RefreshInterval is the manifest polling cadence.
	RefreshInterval time.Duration
	// ManifestTimeout bounds one manifest fetch.
	ManifestTimeout time.Duration
	// SegmentTimeout bounds one segment fetch.
	SegmentTimeout time.Duration

	// InitialSegments is the startup window fetched by Load.
	InitialSegments int
	// Autoplay starts playback as soon as Load completes.
	Autoplay bool
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		MimeType:        `video/mp4; codecs="avc1.42E01E,mp4a.40.2"`,
		MaxBufferLength: 60,
		LowWaterMark:    10,
		RetentionMargin: 10,
		RefreshInterval: 5 * time.Second,
		ManifestTimeout: 5 * time.Second,
		SegmentTimeout:  10 * time.Second,
		InitialSegments: 2,
		Autoplay:        false,
	}
}

// Load reads a JSON config file and overlays it on the defaults. Duration
// fields accept strings like "5s".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config JSON")
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building config decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the controller cannot run with.
func (c *Config) Validate() error {
	if c.ManifestURL == "" {
		return errors.New("config: ManifestURL is required")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("config: RefreshInterval must be positive")
	}
	if c.InitialSegments <= 0 {
		return errors.New("config: InitialSegments must be positive")
	}
	if c.LowWaterMark <= 0 || c.MaxBufferLength <= 0 {
		return errors.New("config: buffer thresholds must be positive")
	}
	if c.LowWaterMark >= c.MaxBufferLength {
		return errors.New("config: LowWaterMark must be below MaxBufferLength")
	}
	return nil
}
