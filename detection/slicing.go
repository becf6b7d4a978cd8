package detection

import (
	"fmt"
	"image"
)

// SliceParams controls how an image is cut into tiles.
type SliceParams struct {
	SliceHeight        int
	SliceWidth         int
	OverlapHeightRatio float64
	OverlapWidthRatio  float64
}

// Validate checks that slicing terminates.
func (p SliceParams) Validate() error {
	if p.SliceHeight <= 0 || p.SliceWidth <= 0 {
		return fmt.Errorf("slice size must be positive, got %dx%d", p.SliceWidth, p.SliceHeight)
	}
	if p.OverlapHeightRatio < 0 || p.OverlapHeightRatio >= 1 || p.OverlapWidthRatio < 0 || p.OverlapWidthRatio >= 1 {
		return fmt.Errorf("overlap ratios must be in [0, 1), got %v/%v", p.OverlapWidthRatio, p.OverlapHeightRatio)
	}
	return nil
}

// Slices returns the tile rectangles covering a width x height image, row by
// row. Tiles step by the slice size minus the overlap; a tile crossing the
// right or bottom edge is shifted back inside the image so it keeps the full
// slice size where the image allows. An image smaller than one slice yields a
// single tile covering it.
func Slices(width, height int, p SliceParams) ([]image.Rectangle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %dx%d", width, height)
	}

	yOverlap := int(p.OverlapHeightRatio * float64(p.SliceHeight))
	xOverlap := int(p.OverlapWidthRatio * float64(p.SliceWidth))

	var slices []image.Rectangle
	yMin, yMax := 0, 0
	for yMax < height {
		xMin, xMax := 0, 0
		yMax = yMin + p.SliceHeight
		for xMax < width {
			xMax = xMin + p.SliceWidth
			if yMax > height || xMax > width {
				x1 := min(width, xMax)
				y1 := min(height, yMax)
				x0 := max(0, x1-p.SliceWidth)
				y0 := max(0, y1-p.SliceHeight)
				slices = append(slices, image.Rect(x0, y0, x1, y1))
			} else {
				slices = append(slices, image.Rect(xMin, yMin, xMax, yMax))
			}
			xMin = xMax - xOverlap
		}
		yMin = yMax - yOverlap
	}

	return slices, nil
}
