package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conservacam/fieldcam/inference"
)

// DetectionJob describes a finished folder run as an inference job so it
// shows up in the job history next to classification runs. The job fails
// when at least one image failed; ExitCode carries the failure count.
func DetectionJob(report *Report, modelRef, saveDir string, startedAt time.Time) *inference.Job {
	finishedAt := startedAt.Add(report.Duration)

	job := &inference.Job{
		ID:          uuid.NewString(),
		Kind:        inference.JobKindDetection,
		InputFolder: report.Folder,
		ModelRef:    modelRef,
		OutputPath:  saveDir,
		Status:      inference.JobStatusSucceeded,
		StartedAt:   startedAt,
		FinishedAt:  &finishedAt,
		ExitCode:    report.Failed(),
	}

	if failed := report.Failed(); failed > 0 {
		job.Status = inference.JobStatusFailed
		job.Error = fmt.Sprintf("%d of %d images failed", failed, len(report.Results))
	}

	return job
}
