package inference

import (
	"context"
	"fmt"

	"github.com/conservacam/fieldcam/logging"
)

// Classifier runs species classification over every image in a folder and
// writes its predictions to outputPath.
type Classifier interface {
	Classify(ctx context.Context, inputFolder, modelRef, outputPath string) error
}

// SpeciesNetClassifier invokes the SpeciesNet run_model script through Python.
type SpeciesNetClassifier struct {
	python string
	runner CommandRunner
	logger logging.Logger
}

// NewSpeciesNetClassifier creates a classifier running python -m speciesnet.scripts.run_model
func NewSpeciesNetClassifier(python string, runner CommandRunner, logger logging.Logger) *SpeciesNetClassifier {
	if python == "" {
		python = "python"
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &SpeciesNetClassifier{
		python: python,
		runner: runner,
		logger: logging.OrNop(logger),
	}
}

// Args returns the argument list passed to the Python interpreter.
func (c *SpeciesNetClassifier) Args(inputFolder, modelRef, outputPath string) []string {
	return []string{
		"-m", "speciesnet.scripts.run_model",
		"--folders", inputFolder,
		"--predictions_json", outputPath,
		"--model", modelRef,
	}
}

func (c *SpeciesNetClassifier) Classify(ctx context.Context, inputFolder, modelRef, outputPath string) error {
	args := c.Args(inputFolder, modelRef, outputPath)
	c.logger.Debug("Running SpeciesNet", "python", c.python, "args", args)

	output, exitCode, err := c.runner.Run(ctx, c.python, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return NewInferenceError("run classification", inputFolder, exitCode, Tail(output), err)
	}

	return nil
}
