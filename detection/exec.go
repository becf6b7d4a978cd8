package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
)

// ImagePlaceholder in an exec command is replaced by the image path.
const ImagePlaceholder = "{image}"

// ExecDetector implements Detector by running an external tool that prints
// COCO annotations for one image on stdout, such as a SAHI wrapper script.
type ExecDetector struct {
	command []string
	runner  inference.CommandRunner
	labels  map[int]string
	logger  logging.Logger
}

// NewExecDetector creates a detector running command, an argv containing ImagePlaceholder
func NewExecDetector(command []string, runner inference.CommandRunner, labels map[int]string, logger logging.Logger) (*ExecDetector, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("detection command is empty")
	}
	if runner == nil {
		runner = inference.NewExecRunner()
	}
	return &ExecDetector{
		command: command,
		runner:  runner,
		labels:  labels,
		logger:  logging.OrNop(logger),
	}, nil
}

// Args returns the argv for imagePath. The image is appended when the
// command has no placeholder.
func (d *ExecDetector) Args(imagePath string) []string {
	args := make([]string, 0, len(d.command)+1)
	replaced := false
	for _, arg := range d.command {
		if strings.Contains(arg, ImagePlaceholder) {
			arg = strings.ReplaceAll(arg, ImagePlaceholder, imagePath)
			replaced = true
		}
		args = append(args, arg)
	}
	if !replaced {
		args = append(args, imagePath)
	}
	return args
}

func (d *ExecDetector) Detect(ctx context.Context, imagePath string) (*Result, error) {
	width, height, err := imageSize(imagePath)
	if err != nil {
		return nil, inference.NewInferenceError("load image", imagePath, -1, "", err)
	}

	args := d.Args(imagePath)
	output, exitCode, err := d.runner.Run(ctx, args[0], args[1:]...)
	if err != nil {
		return nil, inference.NewInferenceError("run detection", imagePath, exitCode, inference.Tail(output), err)
	}

	var annotations []COCOAnnotation
	if err := json.Unmarshal(output, &annotations); err != nil {
		return nil, inference.NewInferenceError("parse detection output", imagePath, exitCode, inference.Tail(output), err)
	}

	predictions := FromCOCO(annotations)
	for i := range predictions {
		if predictions[i].CategoryName == "" {
			predictions[i].CategoryName = d.labels[predictions[i].CategoryID]
		}
	}

	d.logger.Debug("External detection finished", "image", imagePath, "predictions", len(predictions))
	return &Result{
		ImagePath:   imagePath,
		Width:       width,
		Height:      height,
		Predictions: predictions,
	}, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
