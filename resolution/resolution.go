package resolution

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Presets known to the field cameras. 12mp is the full sensor of the
// Raspberry Pi HQ camera.
var presets = map[string]Resolution{
	"12mp":  {Width: 4056, Height: 3040},
	"4k":    {Width: 3840, Height: 2160},
	"1080p": {Width: 1920, Height: 1080},
	"720p":  {Width: 1280, Height: 720},
	"480p":  {Width: 854, Height: 480},
}

func Resolution12MP() Resolution {
	return presets["12mp"]
}

func Resolution1080p() Resolution {
	return presets["1080p"]
}

// Returns the string representation of this Resolution (e.g. 640x480)
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r Resolution) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// SameAspect reports whether r and other have the same aspect ratio within 1%.
func (r Resolution) SameAspect(other Resolution) bool {
	a, b := r.AspectRatio(), other.AspectRatio()
	if a == 0 || b == 0 {
		return false
	}
	return math.Abs(a-b)/b < 0.01
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Pixels returns the pixel count of one frame.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

// Parse converts a string representation of a resolution into a Resolution.
// Supported formats:
// - "4056x3040"
// - "4056:3040"
// - a preset name: "12mp", "4k", "1080p", "720p", "480p"
func Parse(resolutionStr string) (Resolution, error) {
	s := strings.ToLower(strings.TrimSpace(resolutionStr))

	if res, ok := presets[s]; ok {
		return res, nil
	}

	res, err := parseDimensions(strings.ReplaceAll(s, ":", "x"))
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: %w", resolutionStr, err)
	}
	if !res.Valid() {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", resolutionStr)
	}
	return res, nil
}

func parseDimensions(dimStr string) (Resolution, error) {
	parts := strings.Split(dimStr, "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("expected WIDTHxHEIGHT")
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid width: %s", parts[0])
	}

	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid height: %s", parts[1])
	}

	return Resolution{Width: width, Height: height}, nil
}
