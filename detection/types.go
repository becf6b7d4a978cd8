// Package detection runs an object detector over overlapping tiles of a
// large image and merges the per-tile predictions.
package detection

import (
	"context"
	"image"
	"math"
)

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (b BoundingBox) Width() float64 {
	return math.Max(0, b.MaxX-b.MinX)
}

func (b BoundingBox) Height() float64 {
	return math.Max(0, b.MaxY-b.MinY)
}

func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Shift moves the box by (dx, dy).
func (b BoundingBox) Shift(dx, dy float64) BoundingBox {
	return BoundingBox{MinX: b.MinX + dx, MinY: b.MinY + dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

// Clip restricts the box to [0, width] x [0, height].
func (b BoundingBox) Clip(width, height float64) BoundingBox {
	return BoundingBox{
		MinX: math.Min(math.Max(b.MinX, 0), width),
		MinY: math.Min(math.Max(b.MinY, 0), height),
		MaxX: math.Min(math.Max(b.MaxX, 0), width),
		MaxY: math.Min(math.Max(b.MaxY, 0), height),
	}
}

// Union returns the smallest box containing both boxes.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// IntersectionArea returns the overlapping area of both boxes.
func (b BoundingBox) IntersectionArea(o BoundingBox) float64 {
	w := math.Min(b.MaxX, o.MaxX) - math.Max(b.MinX, o.MinX)
	h := math.Min(b.MaxY, o.MaxY) - math.Max(b.MinY, o.MinY)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IOS is the intersection over the smaller of the two areas.
func (b BoundingBox) IOS(o BoundingBox) float64 {
	smaller := math.Min(b.Area(), o.Area())
	if smaller <= 0 {
		return 0
	}
	return b.IntersectionArea(o) / smaller
}

// IOU is the intersection over the union of both areas.
func (b BoundingBox) IOU(o BoundingBox) float64 {
	inter := b.IntersectionArea(o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Prediction is one detected object.
type Prediction struct {
	Box          BoundingBox `json:"box"`
	Score        float64     `json:"score"`
	CategoryID   int         `json:"category_id"`
	CategoryName string      `json:"category_name"`
}

// Result holds the merged predictions for one image.
type Result struct {
	ImagePath   string       `json:"image_path"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Predictions []Prediction `json:"predictions"`
}

// Detector runs the full detection pipeline on one image file.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (*Result, error)
}

// TileDetector runs a model on one image region. Returned boxes are relative
// to the top-left corner of img.Bounds(). Implementations must be safe for
// concurrent use.
type TileDetector interface {
	DetectTile(ctx context.Context, img image.Image) ([]Prediction, error)
}
