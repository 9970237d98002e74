// Package pipeline drives one uploaded call from audio to a reviewable draft
// and, once the reviewer confirms, into the store.
//
// Every step is synchronous. A Run records each state it passes through so the
// reviewer surface can show progress and tests can assert on the exact path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reception-agent-go/internal/dedup"
	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/normalize"
	"reception-agent-go/internal/types"
)

type State string

const (
	StateUploaded         State = "Uploaded"
	StateTranscribing     State = "Transcribing"
	StateTranscribed      State = "Transcribed"
	StateExtracting       State = "Extracting"
	StateExtracted        State = "Extracted"
	StateNormalized       State = "Normalized"
	StateDuplicateChecked State = "DuplicateChecked"
	StateAwaitingReview   State = "AwaitingReview"
	StateSaved            State = "Saved"
	StateFailed           State = "Failed"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, transcript string) (types.RawFields, error)
}

// Store is the slice of the call store the pipeline needs.
type Store interface {
	Recent(ctx context.Context, limit int) ([]types.CallRecord, error)
	Insert(ctx context.Context, rec types.CallRecord) (types.CallRecord, error)
}

// StageError records which stage failed and why.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Upload is a recorded call as received from the reviewer.
type Upload struct {
	Audio    []byte
	Format   string
	Filename string
}

// Run is the in-memory state of one call between upload and save. The audio
// is retained until the run is saved so failed stages can be retried.
type Run struct {
	State      State                 `json:"state"`
	History    []State               `json:"history"`
	Format     string                `json:"format"`
	Filename   string                `json:"filename,omitempty"`
	Transcript string                `json:"transcript,omitempty"`
	Raw        types.RawFields       `json:"raw,omitempty"`
	Draft      types.CallRecord      `json:"draft"`
	Duplicate  *types.DuplicateMatch `json:"duplicate,omitempty"`
	Failure    *StageError           `json:"-"`
	Saved      *types.CallRecord     `json:"saved,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`

	audio []byte
}

func (r *Run) advance(s State) {
	r.State = s
	r.History = append(r.History, s)
	r.UpdatedAt = time.Now()
}

func (r *Run) fail(stage State, err error) error {
	r.Failure = &StageError{Stage: stage, Err: err}
	r.advance(StateFailed)
	return r.Failure
}

// HasAudio reports whether the uploaded audio is still held for retries.
func (r *Run) HasAudio() bool { return len(r.audio) > 0 }

type Orchestrator struct {
	transcriber Transcriber
	extractor   Extractor
	store       Store
	detector    *dedup.Detector
	log         *logger.Logger
}

func New(t Transcriber, e Extractor, s Store, d *dedup.Detector, log *logger.Logger) *Orchestrator {
	if d == nil {
		d = dedup.NewDetector(dedup.DefaultThreshold, dedup.Window{})
	}
	return &Orchestrator{
		transcriber: t,
		extractor:   e,
		store:       s,
		detector:    d,
		log:         log.Component("pipeline"),
	}
}

// Process runs every stage for a fresh upload. The returned run is never nil;
// on failure it is in StateFailed and the error is a *StageError.
func (o *Orchestrator) Process(ctx context.Context, up Upload) (*Run, error) {
	run := &Run{Format: up.Format, Filename: up.Filename, audio: up.Audio}
	run.advance(StateUploaded)
	return run, o.fromTranscription(ctx, run)
}

// Retry resumes a failed run at the stage that failed, reusing the retained
// audio and, when extraction failed, the transcript.
func (o *Orchestrator) Retry(ctx context.Context, run *Run) error {
	if run == nil || run.State != StateFailed || run.Failure == nil {
		return fmt.Errorf("%w: retry needs a failed run", types.ErrInvalidState)
	}
	stage := run.Failure.Stage
	run.Failure = nil

	o.log.WithField("stage", stage).Info("retrying run")
	switch stage {
	case StateExtracting:
		return o.fromExtraction(ctx, run)
	default:
		return o.fromTranscription(ctx, run)
	}
}

// Edit replaces the reviewer-editable fields of the draft. ID, CreatedAt and
// Transcript are kept.
func (o *Orchestrator) Edit(run *Run, draft types.CallRecord) error {
	if run == nil || run.State != StateAwaitingReview {
		return fmt.Errorf("%w: edit needs a run awaiting review", types.ErrInvalidState)
	}
	run.Draft.CallerName = draft.CallerName
	run.Draft.PhoneNumber = draft.PhoneNumber
	run.Draft.Department = draft.Department
	run.Draft.Summary = draft.Summary
	run.Draft.Priority = draft.Priority
	run.Draft.AIResponse = draft.AIResponse
	run.UpdatedAt = time.Now()
	return nil
}

// Confirm canonicalizes the draft and persists it. A store failure leaves the
// run awaiting review so saving can be attempted again.
func (o *Orchestrator) Confirm(ctx context.Context, run *Run) (types.CallRecord, error) {
	if run == nil || run.State != StateAwaitingReview {
		return types.CallRecord{}, fmt.Errorf("%w: confirm needs a run awaiting review", types.ErrInvalidState)
	}

	rec := normalize.Canonicalize(run.Draft)
	saved, err := o.store.Insert(ctx, rec)
	if err != nil {
		o.log.WithError(err).Error("saving call failed")
		return types.CallRecord{}, err
	}

	run.Draft = rec
	run.Saved = &saved
	run.audio = nil
	run.advance(StateSaved)
	o.log.WithField("call_id", saved.ID).Info("call saved")
	return saved, nil
}

func (o *Orchestrator) fromTranscription(ctx context.Context, run *Run) error {
	run.advance(StateTranscribing)
	start := time.Now()
	text, err := o.transcriber.Transcribe(ctx, run.audio, run.Format)
	if err != nil {
		o.log.WithError(err).WithField("stage", StateTranscribing).Warn("stage failed")
		return run.fail(StateTranscribing, err)
	}
	run.Transcript = text
	run.advance(StateTranscribed)
	o.log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("transcribed")

	return o.fromExtraction(ctx, run)
}

func (o *Orchestrator) fromExtraction(ctx context.Context, run *Run) error {
	run.advance(StateExtracting)
	start := time.Now()
	raw, err := o.extractor.Extract(ctx, run.Transcript)
	if err != nil {
		o.log.WithError(err).WithField("stage", StateExtracting).Warn("stage failed")
		return run.fail(StateExtracting, err)
	}
	run.Raw = raw
	run.advance(StateExtracted)
	o.log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("extracted")

	run.Draft = normalize.Record(raw, run.Transcript)
	run.advance(StateNormalized)

	run.Duplicate = o.checkDuplicate(ctx, run.Draft)
	run.advance(StateDuplicateChecked)

	run.advance(StateAwaitingReview)
	return nil
}

// checkDuplicate is advisory; a store that cannot be read means no match.
func (o *Orchestrator) checkDuplicate(ctx context.Context, draft types.CallRecord) *types.DuplicateMatch {
	recent, err := o.store.Recent(ctx, o.detector.Window().Size)
	if err != nil {
		o.log.WithError(err).Warn("duplicate check skipped")
		return nil
	}
	match := o.detector.FindDuplicate(draft, recent)
	if match != nil {
		o.log.WithField("call_id", match.Record.ID).
			WithField("similarity", match.Similarity).
			Info("possible duplicate")
	}
	return match
}

// FailedStage returns the stage a failed run stopped at, or "".
func FailedStage(err error) State {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
