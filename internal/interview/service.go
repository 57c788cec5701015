// Package interview orchestrates one candidate turn: serve a question, grade the
// answer, fuse the modality signals, write feedback and record the result.
package interview

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/chain"
	"github.com/spigell/interview-scorer/internal/evaluation"
	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/normalize"
	"github.com/spigell/interview-scorer/internal/questions"
	"github.com/spigell/interview-scorer/internal/scoring"
	"github.com/spigell/interview-scorer/internal/session"
)

// QuestionSource loads the question set of a domain.
type QuestionSource interface {
	LoadQuestions(domain string) ([]questions.Question, error)
}

// Sessions tracks per-candidate progress.
type Sessions interface {
	GetOrCreate(ctx context.Context, key session.Key) (session.Record, error)
	NextQuestion(ctx context.Context, key session.Key, set []questions.Question) (session.Next, error)
	AppendResult(ctx context.Context, key session.Key, r session.Result) bool
	Reset(ctx context.Context, key session.Key) error
	Get(ctx context.Context, key session.Key) (session.Record, error)
	Ping(ctx context.Context) error
}

// Evaluator grades answers and writes feedback.
type Evaluator interface {
	EvaluateDomain(ctx context.Context, in evaluation.DomainInput) chain.Outcome
	GenerateFeedback(ctx context.Context, signals scoring.Signals, domainTier chain.Tier, domainFeedback string) evaluation.Feedback
}

// Recorder receives service level observations. It may be nil.
type Recorder interface {
	QuestionServed(domain string)
	SessionExhausted(domain string)
	PersistFailed()
}

// Deps are the collaborators of a Service.
type Deps struct {
	Questions QuestionSource
	Sessions  Sessions
	Evaluator Evaluator
	Recorder  Recorder
	Logger    *zap.Logger
}

type Service struct {
	questions QuestionSource
	sessions  Sessions
	evaluator Evaluator
	recorder  Recorder
	logger    *zap.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		questions: d.Questions,
		sessions:  d.Sessions,
		evaluator: d.Evaluator,
		recorder:  d.Recorder,
		logger:    logger.WithFields(d.Logger),
	}
}

// Submission is one answered question with the optional modality results.
type Submission struct {
	Key        session.Key
	QuestionID string
	Answer     string
	Emotion    map[string]any
	Tone       map[string]any
	Posture    map[string]any
}

// Report is the outcome of a submission.
type Report struct {
	QuestionID       string             `json:"question_id"`
	QuestionText     string             `json:"question_text"`
	QuestionIndex    int                `json:"question_index"`
	DomainEvaluation chain.Outcome      `json:"domain_evaluation"`
	SubScores        scoring.SubScores  `json:"sub_scores"`
	Weights          map[string]float64 `json:"weights"`
	FinalScore       float64            `json:"final_score"`
	Rating           string             `json:"qualitative_rating"`
	Feedback         string             `json:"feedback"`
	FeedbackTier     chain.Tier         `json:"feedback_tier"`
	Persisted        bool               `json:"persisted"`
}

// Next serves the next question of the session.
func (s *Service) Next(ctx context.Context, key session.Key) (session.Next, error) {
	if err := key.Validate(); err != nil {
		return session.Next{}, err
	}

	set, err := s.questions.LoadQuestions(key.Domain)
	if err != nil {
		return session.Next{}, err
	}

	next, err := s.sessions.NextQuestion(ctx, key, set)
	if err != nil {
		return session.Next{}, err
	}

	if s.recorder != nil {
		if next.Done {
			s.recorder.SessionExhausted(key.Domain)
		} else {
			s.recorder.QuestionServed(key.Domain)
		}
	}
	return next, nil
}

// Submit grades an answer, writes feedback and records the result. Recording is
// best effort and never fails the submission.
func (s *Service) Submit(ctx context.Context, sub Submission) (Report, error) {
	if err := sub.Key.Validate(); err != nil {
		return Report{}, err
	}
	questionID := strings.TrimSpace(sub.QuestionID)
	if questionID == "" {
		return Report{}, apperr.InvalidInput("question_id is required")
	}

	set, err := s.questions.LoadQuestions(sub.Key.Domain)
	if err != nil {
		return Report{}, err
	}

	index := -1
	for i, q := range set {
		if q.ID == questionID {
			index = i
			break
		}
	}
	if index < 0 {
		return Report{}, apperr.NotFound("question %q in domain %q", questionID, sub.Key.Domain)
	}
	question := set[index]

	log := s.logger.With(logger.SessionFields(sub.Key.Email, sub.Key.InterviewID, sub.Key.Domain)...).
		With(zap.String("question_id", question.ID))

	domain := s.evaluator.EvaluateDomain(ctx, evaluation.DomainInput{
		Question:    question.Text,
		Answer:      sub.Answer,
		IdealAnswer: question.IdealAnswer,
	})

	signals := scoring.Signals{
		NLP:     NLPSignal(domain),
		Emotion: sub.Emotion,
		Tone:    sub.Tone,
		Posture: sub.Posture,
	}
	fb := s.evaluator.GenerateFeedback(ctx, signals, domain.Tier, domain.Feedback)

	report := Report{
		QuestionID:       question.ID,
		QuestionText:     question.Text,
		QuestionIndex:    index + 1,
		DomainEvaluation: domain,
		SubScores:        fb.Fusion.SubScores,
		Weights:          fb.Fusion.Weights.Plain(),
		FinalScore:       fb.Outcome.Score,
		Rating:           fb.Outcome.Rating,
		Feedback:         fb.Outcome.Feedback,
		FeedbackTier:     fb.Outcome.Tier,
	}

	report.Persisted = s.sessions.AppendResult(ctx, sub.Key, session.Result{
		QuestionID:    report.QuestionID,
		QuestionText:  report.QuestionText,
		QuestionIndex: report.QuestionIndex,
		NLPScore:      report.SubScores.NLP,
		EmotionScore:  report.SubScores.Emotion,
		PostureScore:  report.SubScores.Posture,
		ToneScore:     report.SubScores.Tone,
		FinalScore:    report.FinalScore,
		Rating:        report.Rating,
		Feedback:      report.Feedback,
		Tier:          string(report.FeedbackTier),
	})
	if !report.Persisted && s.recorder != nil {
		s.recorder.PersistFailed()
	}

	log.Info("answer evaluated",
		zap.String("domain_tier", string(domain.Tier)),
		zap.Float64("similarity", domain.Score),
		zap.Float64("final_score", report.FinalScore),
		zap.String("rating", report.Rating),
		zap.String("feedback_tier", string(report.FeedbackTier)),
	)

	return report, nil
}

// EvaluateAnswer grades a free-standing answer against a reference.
func (s *Service) EvaluateAnswer(ctx context.Context, answer, reference string) chain.Outcome {
	return s.evaluator.EvaluateDomain(ctx, evaluation.DomainInput{Answer: answer, IdealAnswer: reference})
}

// GenerateFeedback fuses externally produced signals and writes feedback. The
// nlp signal may carry the tier of the evaluation that produced it.
func (s *Service) GenerateFeedback(ctx context.Context, signals scoring.Signals) evaluation.Feedback {
	var tier chain.Tier
	if signals.NLP != nil {
		for _, k := range []string{"source_tier", "tier"} {
			if v := normalize.String(signals.NLP[k]); v != "" {
				tier = chain.Tier(strings.ToLower(v))
				break
			}
		}
	}
	return s.evaluator.GenerateFeedback(ctx, signals, tier, "")
}

// Reset restarts the session from its first question.
func (s *Service) Reset(ctx context.Context, key session.Key) error {
	return s.sessions.Reset(ctx, key)
}

// Start opens the session, resuming it when it already exists. The domain must
// have a question bank.
func (s *Service) Start(ctx context.Context, key session.Key) (session.Record, error) {
	if err := key.Validate(); err != nil {
		return session.Record{}, err
	}
	if _, err := s.questions.LoadQuestions(key.Domain); err != nil {
		return session.Record{}, err
	}
	return s.sessions.GetOrCreate(ctx, key)
}

// Session returns the stored session or apperr.ErrNotFound.
func (s *Service) Session(ctx context.Context, key session.Key) (session.Record, error) {
	return s.sessions.Get(ctx, key)
}

// Health checks the session store.
func (s *Service) Health(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// NLPSignal turns a domain outcome into the nlp signal consumed by fusion.
func NLPSignal(o chain.Outcome) map[string]any {
	return map[string]any{
		"similarity_score": o.Score,
		"feedback":         o.Feedback,
		"source_tier":      string(o.Tier),
	}
}
