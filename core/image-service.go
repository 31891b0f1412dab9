package core

import (
	"context"

	"cuttlefish/storage"
)

// ImageService is what the telegram transport talks to: one call per inbound
// message, one Outcome back. The context is cancelled when the bot shuts
// down or loses interest in the request.
type ImageService interface {
	Generate(ctx context.Context, session int64, prompt string, opts Options) Outcome
	Recent(session int64, limit int) ([]storage.Record, error)
}

// Generator produces a single image for a job. Implementations must be
// stateless across calls: every invocation submits and waits on its own,
// so a failed call can simply be repeated with a fresh job.
type Generator interface {
	Generate(ctx context.Context, job *Job) (Image, error)
}
