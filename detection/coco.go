package detection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// COCOAnnotation is one prediction in COCO annotation form.
type COCOAnnotation struct {
	ImageID      *int       `json:"image_id"`
	BBox         [4]float64 `json:"bbox"` // x, y, width, height
	Score        float64    `json:"score"`
	CategoryID   int        `json:"category_id"`
	CategoryName string     `json:"category_name"`
	Segmentation []any      `json:"segmentation"`
	IsCrowd      int        `json:"iscrowd"`
	Area         float64    `json:"area"`
}

// ToCOCO converts the predictions of a result into COCO annotations.
func ToCOCO(result *Result) []COCOAnnotation {
	annotations := make([]COCOAnnotation, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		annotations = append(annotations, COCOAnnotation{
			BBox:         [4]float64{p.Box.MinX, p.Box.MinY, p.Box.Width(), p.Box.Height()},
			Score:        p.Score,
			CategoryID:   p.CategoryID,
			CategoryName: p.CategoryName,
			Segmentation: []any{},
			Area:         p.Box.Area(),
		})
	}
	return annotations
}

// FromCOCO converts COCO annotations back into predictions.
func FromCOCO(annotations []COCOAnnotation) []Prediction {
	predictions := make([]Prediction, 0, len(annotations))
	for _, a := range annotations {
		predictions = append(predictions, Prediction{
			Box: BoundingBox{
				MinX: a.BBox[0],
				MinY: a.BBox[1],
				MaxX: a.BBox[0] + a.BBox[2],
				MaxY: a.BBox[1] + a.BBox[3],
			},
			Score:        a.Score,
			CategoryID:   a.CategoryID,
			CategoryName: a.CategoryName,
		})
	}
	return predictions
}

// ImageStem returns the file name of imagePath without directory and extension.
func ImageStem(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PredictionsPath returns <saveDir>/<stem>_detections.json.
func PredictionsPath(saveDir, imagePath string) string {
	return filepath.Join(saveDir, ImageStem(imagePath)+"_detections.json")
}

// VisualizationPath returns <saveDir>/<stem>_detections.jpg.
func VisualizationPath(saveDir, imagePath string) string {
	return filepath.Join(saveDir, ImageStem(imagePath)+"_detections.jpg")
}

// WritePredictions writes the COCO annotations of result to
// <saveDir>/<stem>_detections.json, indented with two spaces.
func WritePredictions(saveDir string, result *Result) (string, error) {
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create save directory %s: %w", saveDir, err)
	}

	data, err := json.MarshalIndent(ToCOCO(result), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal predictions: %w", err)
	}

	path := PredictionsPath(saveDir, result.ImagePath)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write predictions %s: %w", path, err)
	}
	return path, nil
}
