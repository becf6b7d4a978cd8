package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture failure policies
const (
	CaptureFailureAbort = "abort"
	CaptureFailureSkip  = "skip"
)

// Detection backends
const (
	DetectionBackendDNN  = "dnn"
	DetectionBackendExec = "exec"
)

// Config holds the application configuration
type Config struct {
	Mode                   string  `json:"mode" yaml:"mode"`
	IntervalSeconds        int     `json:"interval_seconds" yaml:"interval_seconds"`
	DispatchEvery          int     `json:"dispatch_every" yaml:"dispatch_every"` // Captures between two classification runs
	ImageRoot              string  `json:"image_root" yaml:"image_root"`
	VideoRoot              string  `json:"video_root" yaml:"video_root"`
	VideoDurationSeconds   int     `json:"video_duration_seconds" yaml:"video_duration_seconds"`
	VideoFormat            string  `json:"video_format" yaml:"video_format"`
	CameraDevice           string  `json:"camera_device" yaml:"camera_device"`
	StillResolution        string  `json:"still_resolution" yaml:"still_resolution"`
	VideoResolution        string  `json:"video_resolution" yaml:"video_resolution"`
	VideoFrameRate         float64 `json:"video_frame_rate" yaml:"video_frame_rate"`
	VideoCodec             string  `json:"video_codec" yaml:"video_codec"` // FourCC handed to the OpenCV writer
	WarmupSeconds          int     `json:"warmup_seconds" yaml:"warmup_seconds"`
	ModelDir               string  `json:"model_dir" yaml:"model_dir"`
	Python                 string  `json:"python" yaml:"python"`
	PredictionsDir         string  `json:"predictions_dir" yaml:"predictions_dir"`
	DispatchTimeoutSeconds int     `json:"dispatch_timeout_seconds" yaml:"dispatch_timeout_seconds"` // 0 waits forever
	CaptureTimeoutSeconds  int     `json:"capture_timeout_seconds" yaml:"capture_timeout_seconds"`   // 0 waits forever
	CaptureFailurePolicy   string  `json:"capture_failure_policy" yaml:"capture_failure_policy"`
	StateDBPath            string  `json:"state_db_path" yaml:"state_db_path"` // Empty disables checkpointing and the job ledger
	ResumeSession          bool    `json:"resume_session" yaml:"resume_session"`
	StatusAddr             string  `json:"status_addr" yaml:"status_addr"` // Empty disables the status server
	LogLevel               string  `json:"log_level" yaml:"log_level"`
	LogDir                 string  `json:"log_dir" yaml:"log_dir"`

	Detection DetectionConfig `json:"detection" yaml:"detection"`
}

// DetectionConfig configures the tiled detector used by the folder batch runner.
type DetectionConfig struct {
	Backend             string         `json:"backend" yaml:"backend"`
	ModelPath           string         `json:"model_path" yaml:"model_path"`
	ModelConfig         string         `json:"model_config" yaml:"model_config"`
	ExecCommand         []string       `json:"exec_command" yaml:"exec_command"` // argv, "{image}" is replaced by the image path
	ConfidenceThreshold float64        `json:"confidence_threshold" yaml:"confidence_threshold"`
	SliceHeight         int            `json:"slice_height" yaml:"slice_height"`
	SliceWidth          int            `json:"slice_width" yaml:"slice_width"`
	OverlapHeightRatio  float64        `json:"overlap_height_ratio" yaml:"overlap_height_ratio"`
	OverlapWidthRatio   float64        `json:"overlap_width_ratio" yaml:"overlap_width_ratio"`
	FullImagePass       bool           `json:"full_image_pass" yaml:"full_image_pass"`
	MatchThreshold      float64        `json:"match_threshold" yaml:"match_threshold"`
	InputSize           int            `json:"input_size" yaml:"input_size"`
	Labels              map[int]string `json:"labels" yaml:"labels"`
	WorkerFraction      float64        `json:"worker_fraction" yaml:"worker_fraction"`
	Visualize           bool           `json:"visualize" yaml:"visualize"`
	SaveDir             string         `json:"save_dir" yaml:"save_dir"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Mode:                 "image",
		IntervalSeconds:      900, // 15 minutes
		DispatchEvery:        100,
		ImageRoot:            "deploy-test-data",
		VideoRoot:            "deploy-test-data-video",
		VideoDurationSeconds: 30,
		VideoFormat:          "mp4",
		CameraDevice:         "0",
		StillResolution:      "4056x3040", // full 12MP sensor
		VideoResolution:      "1920x1080",
		VideoFrameRate:       30,
		VideoCodec:           "avc1",
		WarmupSeconds:        2,
		ModelDir:             "model",
		Python:               "python",
		PredictionsDir:       ".",
		CaptureFailurePolicy: CaptureFailureAbort,
		StateDBPath:          "fieldcam.db",
		ResumeSession:        false,
		LogLevel:             "info",
		Detection:            DefaultDetectionConfig(),
	}
}

// DefaultDetectionConfig returns the aerial-survey detector defaults
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Backend:             DetectionBackendDNN,
		ModelPath:           "MDV6-yolov9-e-1280.onnx",
		ConfidenceThreshold: 0.5,
		SliceHeight:         512,
		SliceWidth:          512,
		OverlapHeightRatio:  0.7,
		OverlapWidthRatio:   0.7,
		FullImagePass:       true,
		MatchThreshold:      0.5,
		InputSize:           640,
		Labels:              map[int]string{0: "animal", 1: "person", 2: "vehicle"},
		WorkerFraction:      0.8,
		Visualize:           true,
		SaveDir:             "outputs-aerial",
	}
}

// LoadConfig loads configuration from a JSON or YAML file. A missing JSON
// file is created with default values.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if isYAML(filename) {
				return config, nil
			}
			if err := SaveConfig(filename, config); err != nil {
				return nil, fmt.Errorf("failed to create default config file: %w", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults fills zero values left by a partial config file
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = defaults.IntervalSeconds
	}
	if c.DispatchEvery == 0 {
		c.DispatchEvery = defaults.DispatchEvery
	}
	if c.ImageRoot == "" {
		c.ImageRoot = defaults.ImageRoot
	}
	if c.VideoRoot == "" {
		c.VideoRoot = defaults.VideoRoot
	}
	if c.VideoDurationSeconds == 0 {
		c.VideoDurationSeconds = defaults.VideoDurationSeconds
	}
	if c.VideoFormat == "" {
		c.VideoFormat = defaults.VideoFormat
	}
	if c.CameraDevice == "" {
		c.CameraDevice = defaults.CameraDevice
	}
	if c.StillResolution == "" {
		c.StillResolution = defaults.StillResolution
	}
	if c.VideoResolution == "" {
		c.VideoResolution = defaults.VideoResolution
	}
	if c.VideoFrameRate == 0 {
		c.VideoFrameRate = defaults.VideoFrameRate
	}
	if c.VideoCodec == "" {
		c.VideoCodec = defaults.VideoCodec
	}
	if c.ModelDir == "" {
		c.ModelDir = defaults.ModelDir
	}
	if c.Python == "" {
		c.Python = defaults.Python
	}
	if c.PredictionsDir == "" {
		c.PredictionsDir = defaults.PredictionsDir
	}
	if c.CaptureFailurePolicy == "" {
		c.CaptureFailurePolicy = defaults.CaptureFailurePolicy
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	d := &c.Detection
	dd := defaults.Detection
	if d.Backend == "" {
		d.Backend = dd.Backend
	}
	if d.ModelPath == "" {
		d.ModelPath = dd.ModelPath
	}
	if d.ConfidenceThreshold == 0 {
		d.ConfidenceThreshold = dd.ConfidenceThreshold
	}
	if d.SliceHeight == 0 {
		d.SliceHeight = dd.SliceHeight
	}
	if d.SliceWidth == 0 {
		d.SliceWidth = dd.SliceWidth
	}
	if d.MatchThreshold == 0 {
		d.MatchThreshold = dd.MatchThreshold
	}
	if d.InputSize == 0 {
		d.InputSize = dd.InputSize
	}
	if len(d.Labels) == 0 {
		d.Labels = dd.Labels
	}
	if d.WorkerFraction == 0 {
		d.WorkerFraction = dd.WorkerFraction
	}
	if d.SaveDir == "" {
		d.SaveDir = dd.SaveDir
	}
}

// Validate checks the configuration before anything touches the camera
func (c *Config) Validate() error {
	if c.Mode != "image" && c.Mode != "video" {
		return NewConfigurationError("mode", c.Mode, "must be either 'image' or 'video'")
	}
	if c.IntervalSeconds <= 0 {
		return NewConfigurationError("interval_seconds", c.IntervalSeconds, "must be positive")
	}
	if c.DispatchEvery <= 0 {
		return NewConfigurationError("dispatch_every", c.DispatchEvery, "must be positive")
	}
	switch strings.TrimPrefix(strings.ToLower(c.VideoFormat), ".") {
	case "mp4", "h264":
	default:
		return NewConfigurationError("video_format", c.VideoFormat, "must be 'mp4' or 'h264'")
	}
	if c.VideoDurationSeconds <= 0 {
		return NewConfigurationError("video_duration_seconds", c.VideoDurationSeconds, "must be positive")
	}
	if c.CaptureFailurePolicy != CaptureFailureAbort && c.CaptureFailurePolicy != CaptureFailureSkip {
		return NewConfigurationError("capture_failure_policy", c.CaptureFailurePolicy, "must be 'abort' or 'skip'")
	}
	if c.DispatchTimeoutSeconds < 0 {
		return NewConfigurationError("dispatch_timeout_seconds", c.DispatchTimeoutSeconds, "must not be negative")
	}
	if c.CaptureTimeoutSeconds < 0 {
		return NewConfigurationError("capture_timeout_seconds", c.CaptureTimeoutSeconds, "must not be negative")
	}
	return nil
}

// Validate checks the detector and batch runner settings
func (d *DetectionConfig) Validate() error {
	if d.Backend != DetectionBackendDNN && d.Backend != DetectionBackendExec {
		return NewConfigurationError("detection.backend", d.Backend, "must be 'dnn' or 'exec'")
	}
	if d.Backend == DetectionBackendExec && len(d.ExecCommand) == 0 {
		return NewConfigurationError("detection.exec_command", d.ExecCommand, "required for the exec backend")
	}
	if d.SliceHeight <= 0 || d.SliceWidth <= 0 {
		return NewConfigurationError("detection.slice", fmt.Sprintf("%dx%d", d.SliceWidth, d.SliceHeight), "must be positive")
	}
	if d.OverlapHeightRatio < 0 || d.OverlapHeightRatio >= 1 {
		return NewConfigurationError("detection.overlap_height_ratio", d.OverlapHeightRatio, "must be in [0, 1)")
	}
	if d.OverlapWidthRatio < 0 || d.OverlapWidthRatio >= 1 {
		return NewConfigurationError("detection.overlap_width_ratio", d.OverlapWidthRatio, "must be in [0, 1)")
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return NewConfigurationError("detection.confidence_threshold", d.ConfidenceThreshold, "must be in [0, 1]")
	}
	if d.WorkerFraction <= 0 || d.WorkerFraction > 1 {
		return NewConfigurationError("detection.worker_fraction", d.WorkerFraction, "must be in (0, 1]")
	}
	return nil
}

// Interval returns the delay between two captures
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// VideoDuration returns the length of one recorded clip
func (c *Config) VideoDuration() time.Duration {
	return time.Duration(c.VideoDurationSeconds) * time.Second
}

// Warmup returns the delay between opening the camera and grabbing a still
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.WarmupSeconds) * time.Second
}

// DispatchTimeout returns the classifier deadline, zero for none
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// CaptureTimeout returns the capture deadline, zero for none
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutSeconds) * time.Second
}

// MediaRoot returns the root directory for the configured mode
func (c *Config) MediaRoot() string {
	if c.Mode == "video" {
		return c.VideoRoot
	}
	return c.ImageRoot
}

// SaveConfig saves a configuration to a JSON file
func SaveConfig(filename string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
