package core

import "time"

// Request is one validated image generation request. Immutable once built;
// a multi-image request produces several jobs that share the same Request.
type Request struct {
	Session     int64
	Prompt      string
	Model       Model
	Orientation string
	Count       int
	Reference   string // base64 encoded reference image, reference models only
	SubmittedAt time.Time
}

type JobState string

const (
	JobPending   JobState = "pending"
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job is one in-flight generation attempt cycle. It lives in memory for the
// duration of a single request and is owned by the orchestrator; the
// generation client fills in RemoteID and moves the state forward while a
// call is running.
type Job struct {
	Request  Request
	RemoteID string // task id assigned for the remote API, set on submission
	State    JobState
	Attempts int
	LastErr  error
}

// Image is a finished picture ready to be sent back to the chat.
type Image struct {
	Data []byte
	MIME string
}

// Outcome is the terminal result of one request: either Images or Err is
// set, never both. Exactly one Outcome is produced per inbound request.
type Outcome struct {
	Session int64
	Images  []Image
	Err     error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Options carry the per-message knobs parsed by the transport layer.
// Zero values select the defaults: model "flux", portrait, one image.
type Options struct {
	Model       string
	Orientation string
	Count       int
	Reference   string
}
