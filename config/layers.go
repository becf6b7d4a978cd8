package config

// Layer modifies a freshly loaded config. Layers are applied in order on top
// of the file, so later layers win.
type Layer func(*Config) error

// EnvLayer applies FIELDCAM_* variables read through getenv.
func EnvLayer(getenv func(string) string) Layer {
	return func(c *Config) error {
		return c.ApplyEnv(getenv)
	}
}

// OverrideLayer applies CLI overrides.
func OverrideLayer(overrides ConfigOverrides) Layer {
	return func(c *Config) error {
		c.Override(overrides)
		return nil
	}
}

// DetectionOverrideLayer applies CLI overrides of the detection settings.
func DetectionOverrideLayer(overrides DetectionOverrides) Layer {
	return func(c *Config) error {
		c.Detection.Override(overrides)
		return nil
	}
}

// LoadLayered loads filename and applies layers. An empty filename starts
// from DefaultConfig without touching the disk. The result is not validated.
func LoadLayered(filename string, layers ...Layer) (*Config, error) {
	var (
		cfg *Config
		err error
	)

	if filename == "" {
		cfg = DefaultConfig()
	} else if cfg, err = LoadConfig(filename); err != nil {
		return nil, err
	}

	for _, layer := range layers {
		if err := layer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
