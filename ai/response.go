package ai

import (
	"encoding/json"
	"strings"

	"cuttlefish/core"
)

// TaskResult is a single entry of a Runware response.
type TaskResult struct {
	TaskType string     `json:"taskType"`
	TaskUUID string     `json:"taskUUID"`
	Status   string     `json:"status"`
	ImageURL string     `json:"imageURL"`
	Cost     float64    `json:"cost"`
	Error    *TaskError `json:"error"`
}

// TaskError is an error reported by the API, either per task or in the
// top-level errors list of the response envelope.
type TaskError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	TaskUUID string `json:"taskUUID"`
}

// UnmarshalJSON accepts both the documented error object and the plain
// string form that older responses carry.
func (e *TaskError) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Message = s
		return nil
	}
	type alias TaskError
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = TaskError(a)
	return nil
}

// responseEnvelope is the {data, errors} form of a Runware response. The API
// also answers with a bare task array; parseResponse accepts both.
type responseEnvelope struct {
	Data   []TaskResult `json:"data"`
	Error  *TaskError   `json:"error"`
	Errors []TaskError  `json:"errors"`
}

// parseResponse decodes a response body into task results and collected
// errors. Per-task errors are pulled out of the items so callers only ever
// see clean results or an error list.
func parseResponse(raw []byte) ([]TaskResult, []TaskError, bool) {
	var items []TaskResult
	var errs []TaskError

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil &&
		(envelope.Data != nil || envelope.Error != nil || envelope.Errors != nil) {
		items = envelope.Data
		errs = envelope.Errors
		if envelope.Error != nil {
			errs = append(errs, *envelope.Error)
		}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, false
	}

	clean := items[:0:0]
	for _, it := range items {
		if it.Error != nil {
			errs = append(errs, *it.Error)
			continue
		}
		clean = append(clean, it)
	}
	return clean, errs, true
}

// classifyTaskError maps an API-reported error onto the failure taxonomy.
// Runware does not publish a stable code list, so this matches on fragments:
// quota-style errors become rate limits, obvious server-side conditions stay
// retryable and everything else is treated as a rejection of the request,
// which is never retried.
func classifyTaskError(e TaskError) *core.GenError {
	text := strings.ToLower(e.Code + " " + e.Message)
	switch {
	case strings.Contains(text, "rate") || strings.Contains(text, "quota") || strings.Contains(text, "credit"):
		return &core.GenError{Kind: core.KindRateLimited, Message: errText(e)}
	case strings.Contains(text, "timeout") || strings.Contains(text, "internal") ||
		strings.Contains(text, "unavailable") || strings.Contains(text, "server"):
		return &core.GenError{Kind: core.KindTransient, Message: errText(e)}
	default:
		return &core.GenError{Kind: core.KindRejected, Message: errText(e)}
	}
}

func errText(e TaskError) string {
	if e.Message == "" {
		return e.Code
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// findResult returns the inference item matching taskUUID, if any.
func findResult(items []TaskResult, taskUUID string) *TaskResult {
	for i := range items {
		if items[i].TaskType == taskImageInference && items[i].TaskUUID == taskUUID {
			return &items[i]
		}
	}
	return nil
}

// stillRunning reports whether a task status means the job is not done yet.
func stillRunning(status string) bool {
	switch strings.ToLower(status) {
	case "pending", "processing", "scheduled":
		return true
	}
	return false
}
