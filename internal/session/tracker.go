package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/questions"
)

// Next is the result of NextQuestion. When Done is true no question is set.
type Next struct {
	Question questions.Question `json:"question"`
	// Index is 1-based for display.
	Index int  `json:"index"`
	Total int  `json:"total"`
	Done  bool `json:"done"`
}

// Tracker serializes question delivery per session through a Store.
type Tracker struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewTracker(store Store, log *zap.Logger) *Tracker {
	return &Tracker{
		store: store,
		log:   logger.WithFields(log),
		now:   time.Now,
	}
}

// GetOrCreate returns the session, creating it on first use.
func (t *Tracker) GetOrCreate(ctx context.Context, key Key) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	return t.store.GetOrCreate(ctx, key)
}

// Get returns an existing session or apperr.ErrNotFound.
func (t *Tracker) Get(ctx context.Context, key Key) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	return t.store.Get(ctx, key)
}

// NextQuestion claims the next question of set for the session. Each call
// advances the session by at most one question; once every question was served
// it returns Done and leaves the session untouched.
func (t *Tracker) NextQuestion(ctx context.Context, key Key, set []questions.Question) (Next, error) {
	if err := key.Validate(); err != nil {
		return Next{}, err
	}
	if len(set) == 0 {
		return Next{}, fmt.Errorf("%w: domain %q has no questions", apperr.ErrInvalidDomain, key.Domain)
	}

	index, ok, err := t.store.Advance(ctx, key, len(set))
	if err != nil {
		return Next{}, err
	}

	log := t.log.With(logger.SessionFields(key.Email, key.InterviewID, key.Domain)...)
	if !ok {
		log.Debug("question set exhausted", zap.Int("total", len(set)))
		return Next{Total: len(set), Done: true}, nil
	}

	log.Debug("question served", zap.Int("index", index+1), zap.Int("total", len(set)))
	return Next{
		Question: set[index],
		Index:    index + 1,
		Total:    len(set),
	}, nil
}

// AppendResult records r for the session. Persistence is best effort: failures
// are logged and reported through the return value only.
func (t *Tracker) AppendResult(ctx context.Context, key Key, r Result) bool {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = t.now().UTC()
	}

	log := t.log.With(logger.SessionFields(key.Email, key.InterviewID, key.Domain)...)
	if err := key.Validate(); err != nil {
		log.Error("result not persisted", zap.String("question_id", r.QuestionID), zap.Error(err))
		return false
	}

	appended, err := t.store.AppendResult(ctx, key, r)
	if err != nil {
		log.Error("result not persisted", zap.String("question_id", r.QuestionID), zap.Error(err))
		return false
	}
	if !appended {
		log.Debug("duplicate result ignored", zap.String("question_id", r.QuestionID))
	}
	return true
}

// Reset restarts the session from the first question.
func (t *Tracker) Reset(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return t.store.Reset(ctx, key)
}

// Ping checks the store.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.store.Ping(ctx)
}
