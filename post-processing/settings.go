package postprocessing

// RemuxSettings controls how raw recordings are rewritten.
type RemuxSettings struct {
	OutputFormat string // Container format, e.g. "mp4"
	OutputCodec  string // "copy" keeps the recorded stream untouched
	DeleteRaw    bool   // Remove the raw file after a successful remux
}

// DefaultRemuxSettings rewraps raw H.264 into MP4 without re-encoding.
func DefaultRemuxSettings() RemuxSettings {
	return RemuxSettings{
		OutputFormat: "mp4",
		OutputCodec:  "copy",
		DeleteRaw:    true,
	}
}
