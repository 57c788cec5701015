// Package session tracks which question a candidate sees next and accumulates the
// per-question results of one attempt.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/spigell/interview-scorer/internal/apperr"
)

// Key identifies one candidate's attempt at one domain.
type Key struct {
	Email       string `json:"email"`
	InterviewID string `json:"interview_id"`
	Domain      string `json:"domain"`
}

// NewKey normalizes and validates the key components. Email and domain are
// compared case-insensitively.
// The components are copied so a key never aliases a caller's buffer.
func NewKey(email, interviewID, domain string) (Key, error) {
	k := Key{
		Email:       strings.Clone(strings.ToLower(strings.TrimSpace(email))),
		InterviewID: strings.Clone(strings.TrimSpace(interviewID)),
		Domain:      strings.Clone(strings.ToLower(strings.TrimSpace(domain))),
	}
	return k, k.Validate()
}

// Validate reports a missing component as InvalidInput.
func (k Key) Validate() error {
	switch {
	case k.Email == "":
		return apperr.InvalidInput("email is required")
	case k.InterviewID == "":
		return apperr.InvalidInput("interview_id is required")
	case k.Domain == "":
		return apperr.InvalidInput("domain is required")
	}
	return nil
}

func (k Key) String() string {
	return k.Email + ":" + k.InterviewID + ":" + k.Domain
}

// Result is the immutable outcome of one answered question.
type Result struct {
	QuestionID    string    `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	QuestionIndex int       `json:"question_index"`
	NLPScore      float64   `json:"nlp_score"`
	EmotionScore  float64   `json:"emotion_score"`
	PostureScore  *float64  `json:"posture_score"`
	ToneScore     float64   `json:"tone_score"`
	FinalScore    float64   `json:"final_score"`
	Rating        string    `json:"qualitative_rating"`
	Feedback      string    `json:"feedback"`
	Tier          string    `json:"source_tier,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Record is the persisted state of one session.
type Record struct {
	Email           string   `json:"email"`
	InterviewID     string   `json:"interview_id"`
	Domain          string   `json:"domain"`
	CurrentQuestion int      `json:"current_question"`
	Results         []Result `json:"results"`
}

func newRecord(key Key) Record {
	return Record{
		Email:       key.Email,
		InterviewID: key.InterviewID,
		Domain:      key.Domain,
		Results:     []Result{},
	}
}

// Store persists session records. Implementations must make Advance a single
// atomic read-and-increment per key.
type Store interface {
	// GetOrCreate returns the record, creating an empty one exactly once.
	GetOrCreate(ctx context.Context, key Key) (Record, error)
	// Get returns apperr.ErrNotFound when the session does not exist.
	Get(ctx context.Context, key Key) (Record, error)
	// Advance claims the current question index and increments it when it is
	// below total. ok is false, with no mutation, once the session is exhausted.
	Advance(ctx context.Context, key Key, total int) (index int, ok bool, err error)
	// AppendResult appends r unless a result for the same question is already
	// stored. The record is created when missing.
	AppendResult(ctx context.Context, key Key, r Result) (appended bool, err error)
	// Reset rewinds the session to the first question and drops its results.
	Reset(ctx context.Context, key Key) error
	Ping(ctx context.Context) error
}
