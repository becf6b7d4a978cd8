package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/conservacam/fieldcam/detection"
)

// palette colours boxes by category.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 0},
	{R: 72, G: 249, B: 10, A: 0},
	{R: 0, G: 194, B: 255, A: 0},
	{R: 255, G: 157, B: 151, A: 0},
	{R: 146, G: 204, B: 23, A: 0},
	{R: 255, G: 178, B: 29, A: 0},
}

// Renderer draws detections onto a copy of the source image with OpenCV.
type Renderer struct {
	Thickness int
	TextScale float64
}

func NewRenderer() *Renderer {
	return &Renderer{Thickness: 2, TextScale: 1}
}

// Render writes imagePath with one labelled rectangle per prediction to outputPath.
func (r *Renderer) Render(imagePath string, result *detection.Result, outputPath string) error {
	mat := gocv.IMRead(imagePath, gocv.IMReadColor)
	if mat.Empty() {
		return fmt.Errorf("failed to read image %s", imagePath)
	}
	defer mat.Close()

	textThickness := max(r.Thickness-1, 1)

	for _, p := range result.Predictions {
		c := colorFor(p.CategoryID)
		rect := image.Rect(
			int(math.Round(p.Box.MinX)), int(math.Round(p.Box.MinY)),
			int(math.Round(p.Box.MaxX)), int(math.Round(p.Box.MaxY)),
		)
		if err := gocv.Rectangle(&mat, rect, c, r.Thickness); err != nil {
			return fmt.Errorf("failed to draw box: %w", err)
		}

		label := fmt.Sprintf("%s %.2f", p.CategoryName, p.Score)
		pt := image.Pt(rect.Min.X, max(rect.Min.Y-5, 10))
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, r.TextScale, c, textThickness); err != nil {
			return fmt.Errorf("failed to draw label: %w", err)
		}
	}

	if ok := gocv.IMWrite(outputPath, mat); !ok {
		return fmt.Errorf("failed to write %s", outputPath)
	}
	return nil
}

func colorFor(categoryID int) color.RGBA {
	if categoryID < 0 {
		categoryID = -categoryID
	}
	return palette[categoryID%len(palette)]
}
