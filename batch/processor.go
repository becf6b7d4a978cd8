// Package batch runs the detection pipeline over a folder of images,
// serially or on a worker pool, isolating per-image failures.
package batch

import (
	"context"
	"fmt"
	"os"

	"github.com/conservacam/fieldcam/detection"
)

// ImageProcessor runs the full per-image contract: detect, save predictions
// and optionally render a visualization.
type ImageProcessor interface {
	Process(ctx context.Context, imagePath string) error
}

// Renderer draws predictions onto the source image and writes it to outputPath.
type Renderer interface {
	Render(imagePath string, result *detection.Result, outputPath string) error
}

// DetectionProcessor implements ImageProcessor around a detection.Detector.
// Every output file is derived from the image stem, so concurrent calls for
// distinct stems never write the same file.
type DetectionProcessor struct {
	detector detection.Detector
	renderer Renderer
	saveDir  string
}

// NewDetectionProcessor creates a processor writing into saveDir. A nil
// renderer disables visualization.
func NewDetectionProcessor(detector detection.Detector, renderer Renderer, saveDir string) (*DetectionProcessor, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if saveDir == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	return &DetectionProcessor{
		detector: detector,
		renderer: renderer,
		saveDir:  saveDir,
	}, nil
}

// SaveDir returns the output directory.
func (p *DetectionProcessor) SaveDir() string {
	return p.saveDir
}

func (p *DetectionProcessor) Process(ctx context.Context, imagePath string) error {
	if err := os.MkdirAll(p.saveDir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory %s: %w", p.saveDir, err)
	}

	result, err := p.detector.Detect(ctx, imagePath)
	if err != nil {
		return err
	}

	if _, err := detection.WritePredictions(p.saveDir, result); err != nil {
		return err
	}

	if p.renderer != nil {
		if err := p.renderer.Render(imagePath, result, detection.VisualizationPath(p.saveDir, imagePath)); err != nil {
			return fmt.Errorf("failed to visualize predictions: %w", err)
		}
	}

	return nil
}
