package batch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conservacam/fieldcam/detection"
	filemanagement "github.com/conservacam/fieldcam/file-management"
	"github.com/conservacam/fieldcam/logging"
)

// DefaultWorkerFraction is the share of logical CPUs used by RunParallel.
const DefaultWorkerFraction = 0.8

// WorkerCount returns max(1, int(cpus * fraction)).
func WorkerCount(fraction float64, cpus int) int {
	return max(1, int(float64(cpus)*fraction))
}

// ImageResult is the outcome of one image.
type ImageResult struct {
	ImagePath string
	Err       error
}

// Message returns "Processed <image>" or "Error with <image>: <error>".
func (r ImageResult) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("Error with %s: %v", r.ImagePath, r.Err)
	}
	return "Processed " + r.ImagePath
}

// Report collects the per-image outcomes of a run in input order.
type Report struct {
	Folder   string
	Workers  int
	Results  []ImageResult
	Duration time.Duration
}

func (r *Report) Processed() int {
	n := 0
	for _, result := range r.Results {
		if result.Err == nil {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Processed()
}

// Failures returns the failed images.
func (r *Report) Failures() []ImageResult {
	var failures []ImageResult
	for _, result := range r.Results {
		if result.Err != nil {
			failures = append(failures, result)
		}
	}
	return failures
}

// Messages returns one status line per image.
func (r *Report) Messages() []string {
	messages := make([]string, 0, len(r.Results))
	for _, result := range r.Results {
		messages = append(messages, result.Message())
	}
	return messages
}

// Runner enumerates a folder and hands every image to an ImageProcessor.
type Runner struct {
	processor ImageProcessor
	logger    logging.Logger
}

// NewRunner creates a new Runner
func NewRunner(processor ImageProcessor, logger logging.Logger) *Runner {
	return &Runner{
		processor: processor,
		logger:    logging.OrNop(logger),
	}
}

// RunSerial processes the images of folder one after another. The returned
// error is only set when the folder cannot be listed.
func (r *Runner) RunSerial(ctx context.Context, folder string) (*Report, error) {
	return r.run(ctx, folder, 1)
}

// RunParallel processes the images of folder on a pool of workers.
// workers <= 0 selects WorkerCount(DefaultWorkerFraction, NumCPU).
func (r *Runner) RunParallel(ctx context.Context, folder string, workers int) (*Report, error) {
	if workers <= 0 {
		workers = WorkerCount(DefaultWorkerFraction, runtime.NumCPU())
	}
	return r.run(ctx, folder, workers)
}

func (r *Runner) run(ctx context.Context, folder string, workers int) (*Report, error) {
	images, err := filemanagement.ListImages(folder)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Processing images", "folder", folder, "images", len(images), "workers", workers)

	start := time.Now()
	report := &Report{Folder: folder, Workers: workers}
	report.Results = r.ProcessImages(ctx, images, workers)
	report.Duration = time.Since(start)

	r.logger.Info("Batch finished", "folder", folder, "processed", report.Processed(), "failed", report.Failed(), "duration", report.Duration)
	return report, nil
}

// ProcessImages runs every image through the processor and returns one
// result per image in input order. workers <= 1 runs serially. Images whose
// output stem collides with another image are failed without processing.
func (r *Runner) ProcessImages(ctx context.Context, images []string, workers int) []ImageResult {
	results := make([]ImageResult, len(images))
	duplicates := duplicateStems(images)

	var pending []int
	for i, img := range images {
		if err, ok := duplicates[img]; ok {
			results[i] = ImageResult{ImagePath: img, Err: err}
			r.logResult(results[i])
			continue
		}
		pending = append(pending, i)
	}

	if workers <= 1 {
		for _, i := range pending {
			r.logger.Info("Processing image", "image", images[i])
			results[i] = r.processOne(ctx, images[i])
			r.logResult(results[i])
		}
		return results
	}

	workChan := make(chan int, len(pending))
	var wg sync.WaitGroup

	remaining := atomic.Int64{}
	remaining.Store(int64(len(pending)))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				// Each worker writes only its own slot
				results[i] = r.processOne(ctx, images[i])
				r.logResult(results[i])
				r.logger.Debug("Images remaining", "remaining", remaining.Add(-1), "total", len(pending))
			}
		}()
	}

	for _, i := range pending {
		workChan <- i
	}
	close(workChan)

	wg.Wait()
	return results
}

// processOne isolates a single image: errors and panics become its result.
func (r *Runner) processOne(ctx context.Context, imagePath string) (result ImageResult) {
	result.ImagePath = imagePath

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("Recovered panic", "image", imagePath, "stack", string(debug.Stack()))
			result.Err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	result.Err = r.processor.Process(ctx, imagePath)
	return result
}

func (r *Runner) logResult(result ImageResult) {
	if result.Err != nil {
		r.logger.Error(result.Message(), "image", result.ImagePath)
		return
	}
	r.logger.Info(result.Message(), "image", result.ImagePath)
}

// duplicateStems returns an error for every image whose output stem is
// shared with another image.
func duplicateStems(images []string) map[string]error {
	byStem := make(map[string][]string)
	for _, img := range images {
		stem := detection.ImageStem(img)
		byStem[stem] = append(byStem[stem], img)
	}

	duplicates := make(map[string]error)
	for stem, paths := range byStem {
		if len(paths) < 2 {
			continue
		}
		for _, img := range paths {
			duplicates[img] = fmt.Errorf("output name %q is shared by %d images", stem, len(paths))
		}
	}
	return duplicates
}
