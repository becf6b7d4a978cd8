package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override, e.g. FIELDCAM_MODE.
const EnvPrefix = "FIELDCAM_"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(filenames ...string) error {
	for _, filename := range filenames {
		if err := godotenv.Load(filename); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", filename, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with FIELDCAM_* variables read through
// getenv. Malformed numbers are reported as configuration errors.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	env := func(key string) string {
		return strings.TrimSpace(getenv(EnvPrefix + key))
	}

	setString := func(key string, dst *string) {
		if value := env(key); value != "" {
			*dst = value
		}
	}
	setInt := func(key string, dst *int) error {
		value := env(key)
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return NewConfigurationError(EnvPrefix+key, value, "must be an integer")
		}
		*dst = n
		return nil
	}
	setFloat := func(key string, dst *float64) error {
		value := env(key)
		if value == "" {
			return nil
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return NewConfigurationError(EnvPrefix+key, value, "must be a number")
		}
		*dst = f
		return nil
	}
	setBool := func(key string, dst *bool) error {
		value := env(key)
		if value == "" {
			return nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return NewConfigurationError(EnvPrefix+key, value, "must be a boolean")
		}
		*dst = b
		return nil
	}

	setString("MODE", &c.Mode)
	setString("IMAGE_ROOT", &c.ImageRoot)
	setString("VIDEO_ROOT", &c.VideoRoot)
	setString("VIDEO_FORMAT", &c.VideoFormat)
	setString("CAMERA_DEVICE", &c.CameraDevice)
	setString("STILL_RESOLUTION", &c.StillResolution)
	setString("VIDEO_RESOLUTION", &c.VideoResolution)
	setString("MODEL_DIR", &c.ModelDir)
	setString("PYTHON", &c.Python)
	setString("PREDICTIONS_DIR", &c.PredictionsDir)
	setString("CAPTURE_FAILURE_POLICY", &c.CaptureFailurePolicy)
	setString("STATE_DB_PATH", &c.StateDBPath)
	setString("STATUS_ADDR", &c.StatusAddr)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_DIR", &c.LogDir)
	setString("DETECTION_BACKEND", &c.Detection.Backend)
	setString("DETECTION_MODEL_PATH", &c.Detection.ModelPath)
	setString("DETECTION_SAVE_DIR", &c.Detection.SaveDir)

	ints := map[string]*int{
		"INTERVAL_SECONDS":         &c.IntervalSeconds,
		"DISPATCH_EVERY":           &c.DispatchEvery,
		"VIDEO_DURATION_SECONDS":   &c.VideoDurationSeconds,
		"WARMUP_SECONDS":           &c.WarmupSeconds,
		"DISPATCH_TIMEOUT_SECONDS": &c.DispatchTimeoutSeconds,
		"CAPTURE_TIMEOUT_SECONDS":  &c.CaptureTimeoutSeconds,
	}
	for key, dst := range ints {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}

	if err := setFloat("DETECTION_CONFIDENCE_THRESHOLD", &c.Detection.ConfidenceThreshold); err != nil {
		return err
	}
	if err := setFloat("DETECTION_WORKER_FRACTION", &c.Detection.WorkerFraction); err != nil {
		return err
	}
	if err := setBool("RESUME_SESSION", &c.ResumeSession); err != nil {
		return err
	}
	return setBool("DETECTION_VISUALIZE", &c.Detection.Visualize)
}
