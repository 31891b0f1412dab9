package ai

import "cuttlefish/core"

// Runware task types. Every request body is a JSON array of tasks and the
// authentication task rides along with each call.
const (
	taskAuthentication = "authentication"
	taskImageInference = "imageInference"
	taskGetResponse    = "getResponse"
)

// Task is a single entry of a Runware request payload.
type Task struct {
	TaskType        string   `json:"taskType"`
	APIKey          string   `json:"apiKey,omitempty"`
	TaskUUID        string   `json:"taskUUID,omitempty"`
	PositivePrompt  string   `json:"positivePrompt,omitempty"`
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	Model           string   `json:"model,omitempty"`
	OutputFormat    string   `json:"outputFormat,omitempty"`
	IncludeCost     bool     `json:"includeCost,omitempty"`
	OutputType      []string `json:"outputType,omitempty"`
	NumberResults   int      `json:"numberResults,omitempty"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
}

func NewAuthTask(apiKey string) Task {
	return Task{
		TaskType: taskAuthentication,
		APIKey:   apiKey,
	}
}

// NewInferenceTask builds the submission task for one image of a request.
// The API echoes back taskUUID, which doubles as the poll handle.
func NewInferenceTask(taskUUID string, req core.Request) Task {
	width, height := req.Model.Dimensions(req.Orientation)
	task := Task{
		TaskType:       taskImageInference,
		TaskUUID:       taskUUID,
		PositivePrompt: req.Prompt,
		Width:          width,
		Height:         height,
		Model:          req.Model.ID,
		OutputFormat:   "JPEG",
		IncludeCost:    true,
		OutputType:     []string{"URL"},
		NumberResults:  1,
	}
	// Reference images go in as raw base64, not data URIs
	if req.Reference != "" && req.Model.SupportsReference {
		task.ReferenceImages = []string{req.Reference}
	}
	return task
}

func NewStatusTask(taskUUID string) Task {
	return Task{
		TaskType: taskGetResponse,
		TaskUUID: taskUUID,
	}
}
