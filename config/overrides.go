package config

// ConfigOverrides holds potential override values for configuration, usually
// populated from command-line flags. Nil or empty values are ignored.
type ConfigOverrides struct {
	Mode            *string
	IntervalSeconds *int
	DispatchEvery   *int
	ImageRoot       *string
	VideoRoot       *string
	CameraDevice    *string
	ModelDir        *string
	StatusAddr      *string
	LogLevel        *string
}

// Override allows overriding specific configuration values using ConfigOverrides struct
func (c *Config) Override(overrides ConfigOverrides) {
	if overrides.Mode != nil && *overrides.Mode != "" {
		c.Mode = *overrides.Mode
	}
	if overrides.IntervalSeconds != nil && *overrides.IntervalSeconds > 0 {
		c.IntervalSeconds = *overrides.IntervalSeconds
	}
	if overrides.DispatchEvery != nil && *overrides.DispatchEvery > 0 {
		c.DispatchEvery = *overrides.DispatchEvery
	}
	if overrides.ImageRoot != nil && *overrides.ImageRoot != "" {
		c.ImageRoot = *overrides.ImageRoot
	}
	if overrides.VideoRoot != nil && *overrides.VideoRoot != "" {
		c.VideoRoot = *overrides.VideoRoot
	}
	if overrides.CameraDevice != nil && *overrides.CameraDevice != "" {
		c.CameraDevice = *overrides.CameraDevice
	}
	if overrides.ModelDir != nil && *overrides.ModelDir != "" {
		c.ModelDir = *overrides.ModelDir
	}
	if overrides.StatusAddr != nil && *overrides.StatusAddr != "" {
		c.StatusAddr = *overrides.StatusAddr
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		c.LogLevel = *overrides.LogLevel
	}
}

// DetectionOverrides holds CLI overrides for the detection settings. Only
// flags the user actually passed should be set; nil values are ignored.
type DetectionOverrides struct {
	Backend        *string
	ModelPath      *string
	ModelConfig    *string
	SaveDir        *string
	WorkerFraction *float64
	Visualize      *bool
}

// Override applies the non-nil, non-empty values of overrides
func (d *DetectionConfig) Override(overrides DetectionOverrides) {
	if overrides.Backend != nil && *overrides.Backend != "" {
		d.Backend = *overrides.Backend
	}
	if overrides.ModelPath != nil && *overrides.ModelPath != "" {
		d.ModelPath = *overrides.ModelPath
	}
	if overrides.ModelConfig != nil && *overrides.ModelConfig != "" {
		d.ModelConfig = *overrides.ModelConfig
	}
	if overrides.SaveDir != nil && *overrides.SaveDir != "" {
		d.SaveDir = *overrides.SaveDir
	}
	if overrides.WorkerFraction != nil && *overrides.WorkerFraction > 0 {
		d.WorkerFraction = *overrides.WorkerFraction
	}
	if overrides.Visualize != nil {
		d.Visualize = *overrides.Visualize
	}
}
