package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cuttlefish/core"
	"cuttlefish/lib/sl"
)

// Runware generates images over the Runware HTTP API. The client keeps no
// state between calls: every Generate submits its own task and, when the
// API answers asynchronously, polls it to completion within the configured
// budget. A failed call can simply be repeated with a fresh job.
type Runware struct {
	conf       *core.Config
	log        *slog.Logger
	httpClient *http.Client
}

func NewRunware(conf *core.Config, log *slog.Logger) *Runware {
	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runware{
		conf: conf,
		log:  log.With(sl.Module("runware")),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate runs one image job to completion. It moves the job through
// Submitted and, for asynchronous answers, Polling; terminal states are the
// caller's to set.
func (r *Runware) Generate(ctx context.Context, job *core.Job) (core.Image, error) {
	taskUUID := uuid.NewString()
	job.RemoteID = taskUUID

	task := NewInferenceTask(taskUUID, job.Request)

	logText := job.Request.Prompt
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	r.log.With(
		sl.Session(job.Request.Session),
		slog.String("task", taskUUID),
		slog.String("model", task.Model),
		slog.Int("width", task.Width),
		slog.Int("height", task.Height),
	).Info("submitting image task", slog.String("prompt", logText))

	items, err := r.post(ctx, []Task{NewAuthTask(r.conf.RunwareApiKey), task})
	if err != nil {
		return core.Image{}, err
	}
	job.State = core.JobSubmitted

	result := findResult(items, taskUUID)
	switch {
	case result != nil && result.ImageURL != "":
		return r.finish(ctx, job, result)
	case result != nil && stillRunning(result.Status):
		return r.poll(ctx, job)
	case result == nil:
		// accepted without an inline result: the task completes asynchronously
		return r.poll(ctx, job)
	default:
		return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: "no image url in response"}
	}
}

// poll drives the getResponse loop until the task produces an image, the
// API reports an error, or the local wait budget runs out.
func (r *Runware) poll(ctx context.Context, job *core.Job) (core.Image, error) {
	job.State = core.JobPolling
	r.log.With(
		sl.Session(job.Request.Session),
		slog.String("task", job.RemoteID),
	).Debug("waiting for async result",
		slog.Duration("interval", r.conf.PollInterval),
		slog.Duration("budget", r.conf.PollTimeout),
	)

	deadline := time.Now().Add(r.conf.PollTimeout)
	for {
		select {
		case <-ctx.Done():
			return core.Image{}, &core.GenError{Kind: core.KindCancelled, Message: "generation cancelled", Err: ctx.Err()}
		case <-time.After(r.conf.PollInterval):
		}
		if time.Now().After(deadline) {
			return core.Image{}, &core.GenError{
				Kind:    core.KindTimeout,
				Message: "no result within " + r.conf.PollTimeout.String(),
			}
		}

		items, err := r.post(ctx, []Task{NewAuthTask(r.conf.RunwareApiKey), NewStatusTask(job.RemoteID)})
		if err != nil {
			return core.Image{}, err
		}

		result := findResult(items, job.RemoteID)
		if result == nil || stillRunning(result.Status) {
			continue
		}
		if result.ImageURL == "" {
			return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: "no image url in response"}
		}
		return r.finish(ctx, job, result)
	}
}

func (r *Runware) finish(ctx context.Context, job *core.Job, result *TaskResult) (core.Image, error) {
	if result.Cost > 0 {
		r.log.With(
			sl.Session(job.Request.Session),
			slog.String("task", job.RemoteID),
		).Debug("task cost", slog.Float64("cost", result.Cost))
	}
	return r.download(ctx, result.ImageURL)
}

// post sends a task array and returns the clean task results. Every failure
// mode comes back as a GenError so the orchestrator can decide on retries.
func (r *Runware) post(ctx context.Context, tasks []Task) ([]TaskResult, error) {
	jsonBytes, err := json.Marshal(tasks)
	if err != nil {
		return nil, &core.GenError{Kind: core.KindRejected, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.conf.RunwareURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, &core.GenError{Kind: core.KindRejected, Message: "making request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &core.GenError{Kind: core.KindCancelled, Message: "generation cancelled", Err: ctx.Err()}
		}
		return nil, &core.GenError{Kind: core.KindTransient, Message: "calling runware", Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			r.log.Error("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.GenError{Kind: core.KindTransient, Message: "reading response body", Err: err}
	}
	r.log.With(slog.Int("status", resp.StatusCode)).Debug("response body", slog.String("body", string(body)))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &core.GenError{
			Kind:       core.KindRateLimited,
			Message:    "runware rate limit",
			RetryAfter: retryAfter(resp.Header),
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &core.GenError{Kind: core.KindTransient, Message: fmt.Sprintf("runware returned status %d", resp.StatusCode)}
	}

	items, taskErrs, ok := parseResponse(body)
	if !ok {
		if resp.StatusCode != http.StatusOK {
			return nil, &core.GenError{Kind: core.KindRejected, Message: fmt.Sprintf("runware returned status %d", resp.StatusCode)}
		}
		return nil, &core.GenError{Kind: core.KindTransient, Message: "decoding response"}
	}
	if len(taskErrs) > 0 {
		r.log.Warn("task error",
			slog.String("code", taskErrs[0].Code),
			slog.String("message", taskErrs[0].Message),
		)
		return nil, classifyTaskError(taskErrs[0])
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.GenError{Kind: core.KindRejected, Message: fmt.Sprintf("runware returned status %d", resp.StatusCode)}
	}
	return items, nil
}

// download fetches the finished image. The MIME type comes from the
// response header, defaulting to JPEG which is what the task asked for.
func (r *Runware) download(ctx context.Context, url string) (core.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: "making download request", Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.Image{}, &core.GenError{Kind: core.KindCancelled, Message: "generation cancelled", Err: ctx.Err()}
		}
		return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: "downloading image", Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			r.log.Error("closing response body", sl.Err(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: fmt.Sprintf("image download returned status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Image{}, &core.GenError{Kind: core.KindTransient, Message: "reading image", Err: err}
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	r.log.Debug("image downloaded", slog.Int("bytes", len(data)), slog.String("mime", mimeType))
	return core.Image{Data: data, MIME: mimeType}, nil
}

func retryAfter(header http.Header) time.Duration {
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
