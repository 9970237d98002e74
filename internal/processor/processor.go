// Package processor keeps review sessions: one pipeline run per uploaded call,
// held in memory between upload and confirmation. It is also the single
// place where stored calls are read back, so every view it returns is masked.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"reception-agent-go/internal/actionable"
	"reception-agent-go/internal/aggregator"
	"reception-agent-go/internal/dataset"
	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/mask"
	"reception-agent-go/internal/pipeline"
	"reception-agent-go/internal/store"
	"reception-agent-go/internal/transcription"
	"reception-agent-go/internal/types"
)

const DefaultSessionTTL = 2 * time.Hour

// CallStore is the persistence the service needs.
type CallStore interface {
	pipeline.Store
	Get(ctx context.Context, id int64) (types.CallRecord, error)
	List(ctx context.Context, f store.Filter) ([]types.CallRecord, error)
	Delete(ctx context.Context, id int64) error
}

// View is what the reviewer sees of a session. The draft shows the phone as
// entered so it can be edited; the duplicate and saved records are masked.
type View struct {
	ID          string                `json:"id"`
	State       pipeline.State        `json:"state"`
	History     []pipeline.State      `json:"history"`
	Filename    string                `json:"filename,omitempty"`
	Format      string                `json:"format"`
	Transcript  string                `json:"transcript,omitempty"`
	Draft       *types.CallRecord     `json:"draft,omitempty"`
	Duplicate   *types.DuplicateMatch `json:"duplicate,omitempty"`
	FailedStage pipeline.State        `json:"failed_stage,omitempty"`
	Error       string                `json:"error,omitempty"`
	Saved       *types.CallRecord     `json:"saved,omitempty"`
	ExpiresAt   time.Time             `json:"expires_at"`
}

type session struct {
	mu        sync.Mutex
	id        string
	run       *pipeline.Run
	expiresAt time.Time
}

func (s *session) view() View {
	run := s.run
	v := View{
		ID:         s.id,
		State:      run.State,
		History:    append([]pipeline.State(nil), run.History...),
		Filename:   run.Filename,
		Format:     run.Format,
		Transcript: run.Transcript,
		Duplicate:  mask.Match(run.Duplicate),
		ExpiresAt:  s.expiresAt,
	}
	switch run.State {
	case pipeline.StateAwaitingReview, pipeline.StateSaved:
		draft := run.Draft
		v.Draft = &draft
	}
	if run.Failure != nil {
		v.FailedStage = run.Failure.Stage
		v.Error = run.Failure.Err.Error()
	}
	if run.Saved != nil {
		saved := mask.Record(*run.Saved)
		v.Saved = &saved
		v.Draft = nil
	}
	return v
}

type Service struct {
	orch  *pipeline.Orchestrator
	store CallStore
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func New(orch *pipeline.Orchestrator, st CallStore, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		orch:     orch,
		store:    st,
		ttl:      ttl,
		log:      log.Component("processor"),
		now:      time.Now,
		sessions: map[string]*session{},
	}
}

// Start validates the upload and runs the pipeline. A session is kept even
// when a stage fails so the reviewer can retry without uploading again; in
// that case both the view and the stage error are returned.
func (s *Service) Start(ctx context.Context, up pipeline.Upload) (View, error) {
	var err error
	if up.Format != "" {
		up.Format, err = transcription.NormalizeFormat(up.Format)
	} else {
		up.Format, err = transcription.FormatFromFilename(up.Filename)
	}
	if err != nil {
		return View{}, err
	}
	format := up.Format

	sess := &session{id: uuid.NewString(), expiresAt: s.now().Add(s.ttl)}
	log := s.log.WithField("session_id", sess.id).WithField("format", format)
	log.Info("processing upload")

	run, procErr := s.orch.Process(ctx, up)
	sess.run = run

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if procErr != nil {
		log.WithField("stage", pipeline.FailedStage(procErr)).Warn("upload stopped at failed stage")
	}
	return sess.view(), procErr
}

// Get returns the current view of a session.
func (s *Service) Get(id string) (View, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

func (s *Service) Retry(ctx context.Context, id string) (View, error) {
	return s.withSession(id, func(sess *session) error {
		return s.orch.Retry(ctx, sess.run)
	})
}

// Edit applies change to the current draft while the session is locked, so
// concurrent edits of different fields all land.
func (s *Service) Edit(id string, change func(types.CallRecord) types.CallRecord) (View, error) {
	return s.withSession(id, func(sess *session) error {
		return s.orch.Edit(sess.run, change(sess.run.Draft))
	})
}

// Confirm saves the draft. The session is dropped after a successful save.
func (s *Service) Confirm(ctx context.Context, id string) (View, error) {
	v, err := s.withSession(id, func(sess *session) error {
		_, err := s.orch.Confirm(ctx, sess.run)
		return err
	})
	if err == nil {
		s.drop(id)
		s.log.WithField("session_id", id).WithField("call_id", v.Saved.ID).Info("session confirmed")
	}
	return v, err
}

// Discard drops a session without saving anything.
func (s *Service) Discard(id string) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}
	s.drop(id)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.log.WithField("expired", n).Info("swept review sessions")
			}
		}
	}
}

func (s *Service) withSession(id string, fn func(*session) error) (View, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	err = fn(sess)
	sess.expiresAt = s.now().Add(s.ttl)
	return sess.view(), err
}

func (s *Service) lookup(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || s.now().After(sess.expiresAt) {
		return nil, fmt.Errorf("session %q: %w", id, types.ErrNotFound)
	}
	return sess, nil
}

func (s *Service) drop(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// ListCalls returns stored calls newest first with phones masked.
func (s *Service) ListCalls(ctx context.Context, f store.Filter) ([]types.CallRecord, error) {
	recs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return mask.Records(recs), nil
}

func (s *Service) GetCall(ctx context.Context, id int64) (types.CallRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return types.CallRecord{}, err
	}
	return mask.Record(rec), nil
}

func (s *Service) DeleteCall(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("call_id", id).Info("call deleted")
	return nil
}

// Report bundles call stats with a suggested action.
type Report struct {
	Stats  aggregator.Stats      `json:"stats"`
	Action actionable.ActionCard `json:"action"`
}

func (s *Service) Stats(ctx context.Context) (Report, error) {
	recs, err := s.allCalls(ctx, "")
	if err != nil {
		return Report{}, err
	}
	st := aggregator.Aggregate(recs)
	return Report{Stats: st, Action: actionable.Generate(st)}, nil
}

// Export writes every call matching query to w as xlsx.
func (s *Service) Export(ctx context.Context, w io.Writer, query string) (int, error) {
	recs, err := s.allCalls(ctx, query)
	if err != nil {
		return 0, err
	}
	if err := dataset.WriteXLSX(w, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *Service) allCalls(ctx context.Context, query string) ([]types.CallRecord, error) {
	var out []types.CallRecord
	for offset := 0; ; offset += store.MaxListLimit {
		page, err := s.store.List(ctx, store.Filter{Query: query, Limit: store.MaxListLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < store.MaxListLimit {
			return out, nil
		}
	}
}

// IsSessionError reports whether err came from a pipeline stage, in which
// case the session still exists and can be retried.
func IsSessionError(err error) bool {
	var se *pipeline.StageError
	return errors.As(err, &se)
}
