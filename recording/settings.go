package recording

import (
	"time"

	"github.com/conservacam/fieldcam/config"
	"github.com/conservacam/fieldcam/resolution"
)

var DefaultRecordingSettings = RecordingSettings{
	StillResolution: resolution.Resolution12MP(),
	VideoResolution: resolution.Resolution1080p(),
	Codec:           "avc1", // H.264 FourCC
	FrameRate:       30.0,
	Warmup:          2 * time.Second,
}

type RecordingSettings struct {
	StillResolution resolution.Resolution // Sensor mode used for stills
	VideoResolution resolution.Resolution // Frame size of recorded clips
	Codec           string                // FourCC handed to the video writer
	FrameRate       float64               // Frame rate for video capture
	Warmup          time.Duration         // Exposure settling time before a still
}

// SettingsFromConfig maps the station configuration onto recording settings.
// Unparseable or missing values fall back to DefaultRecordingSettings.
func SettingsFromConfig(cfg config.Config) RecordingSettings {
	settings := DefaultRecordingSettings

	if res, err := resolution.Parse(cfg.StillResolution); err == nil {
		settings.StillResolution = res
	}
	if res, err := resolution.Parse(cfg.VideoResolution); err == nil {
		settings.VideoResolution = res
	}
	if cfg.VideoCodec != "" {
		settings.Codec = cfg.VideoCodec
	}
	if cfg.VideoFrameRate > 0 {
		settings.FrameRate = cfg.VideoFrameRate
	}
	if cfg.WarmupSeconds >= 0 {
		settings.Warmup = cfg.Warmup()
	}

	return settings
}

// NewRecordingSettingsProvider derives recording settings from a config provider,
// so edits to the config file reach the next capture.
func NewRecordingSettingsProvider(source config.SettingsProvider[config.Config]) config.SettingsProvider[RecordingSettings] {
	return config.NewMappedSettingsProvider(source, SettingsFromConfig)
}
