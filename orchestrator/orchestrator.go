package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cuttlefish/core"
	"cuttlefish/lib/sl"
	"cuttlefish/session"
	"cuttlefish/storage"
)

// Orchestrator turns inbound chat messages into image generation jobs and
// drives each one to exactly one terminal outcome. At most one request per
// session is in flight at any time; everything else about a request lives
// on the stack of its Generate call, so nothing needs recovery after a
// crash beyond the session slot itself.
type Orchestrator struct {
	conf     *core.Config
	log      *slog.Logger
	gen      core.Generator
	sessions *session.Tracker
	history  storage.History
	policy   RetryPolicy
}

func New(conf *core.Config, log *slog.Logger, gen core.Generator, sessions *session.Tracker, history storage.History) *Orchestrator {
	return &Orchestrator{
		conf:     conf,
		log:      log.With(sl.Module("orchestrator")),
		gen:      gen,
		sessions: sessions,
		history:  history,
		policy:   PolicyFromConfig(conf),
	}
}

// Generate handles one inbound message: validate, claim the session slot,
// run the jobs, hand back the outcome. Failures never escape as errors or
// panics; whatever happens, the caller gets exactly one Outcome and the
// session slot is free again by the time it arrives.
func (o *Orchestrator) Generate(ctx context.Context, sessionId int64, raw string, opts core.Options) (out core.Outcome) {
	out = core.Outcome{Session: sessionId}
	started := time.Now()

	var (
		req   core.Request
		lease *session.Lease
	)

	// The lease has its own deferred release below; this outer defer runs
	// after it, so a panic can never leak a claimed session slot.
	defer func() {
		if r := recover(); r != nil {
			o.log.With(sl.Session(sessionId)).Error("recovered from panic", slog.Any("panic", r))
			out = core.Outcome{
				Session: sessionId,
				Err:     &core.GenError{Kind: core.KindTransient, Message: "internal error"},
			}
		}
		if lease != nil {
			o.record(req, out, time.Since(started))
		}
	}()

	modelKey := opts.Model
	if modelKey == "" {
		modelKey = core.DefaultModel
	}
	model, ok := core.ModelByKey(modelKey)
	if !ok {
		out.Err = &core.GenError{Kind: core.KindInvalidPrompt, Message: "unknown model " + modelKey}
		return out
	}

	prompt, err := core.ValidatePrompt(raw, o.conf.MaxPromptLength)
	if err != nil {
		out.Err = err
		return out
	}

	req = newRequest(sessionId, prompt, model, opts)

	lease, err = o.sessions.TryAcquire(sessionId)
	if err != nil {
		out.Err = &core.GenError{
			Kind:    core.KindSessionBusy,
			Message: "a generation is already running for this session",
			Err:     err,
		}
		return out
	}
	defer lease.Release()

	o.log.With(
		sl.Session(sessionId),
		slog.String("model", model.Key),
		slog.String("orientation", req.Orientation),
		slog.Int("count", req.Count),
	).Info("request accepted")

	images := make([]core.Image, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		img, err := o.generateOne(ctx, req)
		if err != nil {
			out.Err = err
			return out
		}
		images = append(images, img)
	}
	out.Images = images
	return out
}

// Recent returns the latest finished generations for a session.
func (o *Orchestrator) Recent(sessionId int64, limit int) ([]storage.Record, error) {
	return o.history.Recent(sessionId, limit)
}

// Close releases the history store.
func (o *Orchestrator) Close() error {
	return o.history.Close()
}

// generateOne drives a single job through the state machine:
// Pending -> Submitted -> Polling -> Succeeded/Failed/Cancelled.
// Transient failures are retried on the policy's backoff schedule, a rate
// limit is retried once after the advertised delay, everything else is
// terminal for the job.
func (o *Orchestrator) generateOne(ctx context.Context, req core.Request) (core.Image, error) {
	job := &core.Job{Request: req, State: core.JobPending}
	log := o.log.With(sl.Session(req.Session))
	rateLimited := false

	for {
		job.Attempts++
		img, err := o.gen.Generate(ctx, job)
		if err == nil {
			job.State = core.JobSucceeded
			log.With(slog.Int("attempts", job.Attempts)).Info("job succeeded",
				slog.String("task", job.RemoteID),
				slog.Int("bytes", len(img.Data)),
			)
			return img, nil
		}
		job.LastErr = err

		var delay time.Duration
		switch core.KindOf(err) {
		case core.KindTransient:
			if job.Attempts >= o.policy.MaxAttempts {
				job.State = core.JobFailed
				log.With(slog.Int("attempts", job.Attempts)).Error("job failed", sl.Err(err))
				return core.Image{}, err
			}
			delay = o.policy.Delay(job.Attempts)
		case core.KindRateLimited:
			if rateLimited {
				job.State = core.JobFailed
				log.Error("job failed", sl.Err(err))
				return core.Image{}, err
			}
			rateLimited = true
			delay = o.policy.RateLimitDelay
			if hint := core.RetryAfterOf(err); hint > 0 {
				delay = hint
			}
		case core.KindCancelled:
			job.State = core.JobCancelled
			log.With(slog.Int("attempts", job.Attempts)).Info("job cancelled")
			return core.Image{}, err
		default:
			// Rejected and Timeout are terminal: resubmitting would repeat
			// the refusal or pile more load on a stalled service
			job.State = core.JobFailed
			log.Error("job failed", sl.Err(err))
			return core.Image{}, err
		}

		log.With(
			slog.Int("attempt", job.Attempts),
			slog.Duration("delay", delay),
		).Warn("retrying job", sl.Err(err))

		if err := o.sleep(ctx, delay); err != nil {
			job.State = core.JobCancelled
			return core.Image{}, err
		}
		job.State = core.JobPending
	}
}

// sleep waits out a retry delay unless the caller loses interest first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return &core.GenError{Kind: core.KindCancelled, Message: "generation cancelled", Err: ctx.Err()}
	case <-time.After(d):
		return nil
	}
}

func (o *Orchestrator) record(req core.Request, out core.Outcome, took time.Duration) {
	rec := storage.Record{
		Session:     req.Session,
		Prompt:      req.Prompt,
		Model:       req.Model.Key,
		Orientation: req.Orientation,
		Count:       req.Count,
		Outcome:     "ok",
		Duration:    took,
		CreatedAt:   time.Now(),
	}
	if out.Err != nil {
		rec.Outcome = string(core.KindOf(out.Err))
		rec.Error = out.Err.Error()
	}
	if err := o.history.Add(rec); err != nil {
		o.log.Error("recording history", sl.Err(err))
	}
}

// newRequest pins down the normalized, immutable request: orientation and
// count clamped to their valid ranges, reference images dropped for models
// that cannot use them.
func newRequest(sessionId int64, prompt string, model core.Model, opts core.Options) core.Request {
	orientation := strings.ToLower(opts.Orientation)
	if orientation == "" {
		orientation = core.OrientationPortrait
	}
	count := opts.Count
	if count < 1 {
		count = 1
	}
	if count > core.MaxImages {
		count = core.MaxImages
	}
	reference := opts.Reference
	if !model.SupportsReference {
		reference = ""
	}
	return core.Request{
		Session:     sessionId,
		Prompt:      prompt,
		Model:       model,
		Orientation: orientation,
		Count:       count,
		Reference:   reference,
		SubmittedAt: time.Now(),
	}
}
