package detection

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
)

// SlicedOptions configures a SlicedDetector.
type SlicedOptions struct {
	Slice               SliceParams
	ConfidenceThreshold float64
	MatchThreshold      float64        // IOS above which two predictions are merged
	FullImagePass       bool           // Also run the model on the whole image
	Labels              map[int]string // Category names, used when the model leaves them empty
}

// SlicedDetector implements Detector by running a TileDetector over every
// slice of the image and merging the results.
type SlicedDetector struct {
	tiles  TileDetector
	opts   SlicedOptions
	logger logging.Logger
}

// NewSlicedDetector creates a new SlicedDetector
func NewSlicedDetector(tiles TileDetector, opts SlicedOptions, logger logging.Logger) (*SlicedDetector, error) {
	if tiles == nil {
		return nil, fmt.Errorf("tile detector is required")
	}
	if err := opts.Slice.Validate(); err != nil {
		return nil, err
	}
	return &SlicedDetector{
		tiles:  tiles,
		opts:   opts,
		logger: logging.OrNop(logger),
	}, nil
}

// Detect decodes the image, runs every tile and merges overlapping predictions.
// Load and model failures are returned as InferenceError.
func (d *SlicedDetector) Detect(ctx context.Context, imagePath string) (*Result, error) {
	img, err := loadImage(imagePath)
	if err != nil {
		return nil, inference.NewInferenceError("load image", imagePath, -1, "", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	slices, err := Slices(width, height, d.opts.Slice)
	if err != nil {
		return nil, inference.NewInferenceError("slice image", imagePath, -1, "", err)
	}
	d.logger.Debug("Slicing image", "image", imagePath, "width", width, "height", height, "slices", len(slices))

	var predictions []Prediction
	for _, rect := range slices {
		if err := ctx.Err(); err != nil {
			return nil, inference.NewInferenceError("detect", imagePath, -1, "", err)
		}

		tile := subImage(img, rect.Add(bounds.Min))
		tilePredictions, err := d.tiles.DetectTile(ctx, tile)
		if err != nil {
			return nil, inference.NewInferenceError("detect tile", fmt.Sprintf("%s%v", imagePath, rect), -1, "", err)
		}
		predictions = append(predictions, d.accept(tilePredictions, rect.Min, width, height)...)
	}

	if d.opts.FullImagePass && len(slices) > 1 {
		fullPredictions, err := d.tiles.DetectTile(ctx, img)
		if err != nil {
			return nil, inference.NewInferenceError("detect", imagePath, -1, "", err)
		}
		predictions = append(predictions, d.accept(fullPredictions, image.Point{}, width, height)...)
	}

	merged := MergeGreedy(predictions, d.opts.MatchThreshold)
	if merged == nil {
		merged = []Prediction{}
	}

	return &Result{
		ImagePath:   imagePath,
		Width:       width,
		Height:      height,
		Predictions: merged,
	}, nil
}

// accept applies the confidence threshold and moves boxes into image coordinates.
func (d *SlicedDetector) accept(predictions []Prediction, offset image.Point, width, height int) []Prediction {
	var out []Prediction
	for _, p := range predictions {
		if p.Score < d.opts.ConfidenceThreshold {
			continue
		}
		p.Box = p.Box.Shift(float64(offset.X), float64(offset.Y)).Clip(float64(width), float64(height))
		if p.Box.Area() <= 0 {
			continue
		}
		if p.CategoryName == "" {
			p.CategoryName = d.opts.Labels[p.CategoryID]
		}
		out = append(out, p)
	}
	return out
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// subImage crops without copying when the decoder's image type allows it.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
