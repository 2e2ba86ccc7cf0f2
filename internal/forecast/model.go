package forecast

import (
	"context"
	"time"
)

// Model predicts the next scaled value from a window of scaled values.
// Windows longer than LookBack are truncated to their trailing LookBack values.
type Model interface {
	LookBack() int
	Predict(window []float64) (float64, error)
}

// FitReport summarises one fit
type FitReport struct {
	TrainSamples      int
	ValidationSamples int
	TrainMSE          float64
	ValidationMSE     float64 // NaN without validation samples
	Reinitialized     bool    // the prior model could not be fine-tuned
	FittedAt          time.Time
}

// Trainer creates and fine-tunes models
type Trainer interface {
	// Fresh returns an untrained model in its default configuration
	Fresh() Model
	// Fit trains starting from base. base is never modified.
	Fit(ctx context.Context, base Model, train, validation Dataset) (Model, FitReport, error)
}

// Codec serializes models to artifact bytes
type Codec interface {
	Encode(m Model) ([]byte, error)
	Decode(data []byte) (Model, error)
}
