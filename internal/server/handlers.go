package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/analyzer"
	"github.com/spigell/interview-scorer/internal/interview"
	"github.com/spigell/interview-scorer/internal/normalize"
	"github.com/spigell/interview-scorer/internal/scoring"
)

func (s *Server) home(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": appName + " running"})
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.deps.Service.Health(c.UserContext()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) nextQuestion(c *fiber.Ctx) error {
	var q sessionQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	key, err := q.key()
	if err != nil {
		return err
	}

	next, err := s.deps.Service.Next(c.UserContext(), key)
	if err != nil {
		return err
	}

	if next.Done {
		return c.JSON(fiber.Map{"success": true, "done": true, "total": next.Total})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"id":      next.Question.ID,
		"text":    next.Question.Text,
		"index":   next.Index,
		"total":   next.Total,
	})
}

func (s *Server) evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	out := s.deps.Service.EvaluateAnswer(c.UserContext(), req.UserResponse, req.ReferenceText)
	return writeJSON(c, fiber.Map{
		"similarity_score": out.Score,
		"feedback":         out.Feedback,
		"tier":             string(out.Tier),
		"stage":            out.Stage,
	})
}

func (s *Server) generateFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	fb := s.deps.Service.GenerateFeedback(c.UserContext(), scoring.Signals{
		NLP:     req.NLP,
		Emotion: req.Emotion,
		Tone:    req.Tone,
		Posture: req.Posture,
	})

	return writeJSON(c, fiber.Map{
		"final_score":        fb.Outcome.Score,
		"qualitative_rating": fb.Outcome.Rating,
		"feedback":           fb.Outcome.Feedback,
		"tier":               string(fb.Outcome.Tier),
		"fused_score":        fb.Fusion.FinalScore,
		"sub_scores":         subScores(fb.Fusion.SubScores),
		"weights":            fb.Fusion.Weights.Plain(),
		"nlp_result":         req.NLP,
		"emotion_result":     req.Emotion,
		"tone_result":        req.Tone,
		"posture_result":     req.Posture,
	})
}

func (s *Server) submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}

	report, err := s.deps.Service.Submit(c.UserContext(), interview.Submission{
		Key:        key,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
		Emotion:    req.Emotion,
		Tone:       req.Tone,
		Posture:    req.Posture,
	})
	if err != nil {
		return err
	}

	return writeJSON(c, fiber.Map{
		"success":        true,
		"question_id":    report.QuestionID,
		"question_text":  report.QuestionText,
		"question_index": report.QuestionIndex,
		"domain_evaluation": map[string]any{
			"similarity_score": report.DomainEvaluation.Score,
			"feedback":         report.DomainEvaluation.Feedback,
			"tier":             string(report.DomainEvaluation.Tier),
			"stage":            report.DomainEvaluation.Stage,
		},
		"sub_scores":         subScores(report.SubScores),
		"weights":            report.Weights,
		"final_score":        report.FinalScore,
		"qualitative_rating": report.Rating,
		"feedback":           report.Feedback,
		"feedback_tier":      string(report.FeedbackTier),
		"persisted":          report.Persisted,
	})
}

func (s *Server) session(c *fiber.Ctx) error {
	var q sessionQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	key, err := q.key()
	if err != nil {
		return err
	}

	record, err := s.deps.Service.Session(c.UserContext(), key)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "session": record})
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	var q sessionQuery
	if err := parseBody(c, &q); err != nil {
		return err
	}
	key, err := q.key()
	if err != nil {
		return err
	}

	if err := s.deps.Service.Reset(c.UserContext(), key); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// analyze proxies an uploaded file to a modality analyzer. Failures are
// reported in the body with HTTP 200 so that clients keep going.
func (s *Server) analyze(m analyzer.Modality, field string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.deps.Analyzer == nil {
			return writeJSON(c, analyzer.Failure(fmt.Errorf("%s analyzer is not configured", m)))
		}

		fh, err := c.FormFile(field)
		if err != nil {
			return writeJSON(c, analyzer.Failure(fmt.Errorf("form file %q is required", field)))
		}

		f, err := fh.Open()
		if err != nil {
			return writeJSON(c, analyzer.Failure(fmt.Errorf("open upload: %w", err)))
		}
		defer f.Close()

		fields := make(map[string]string)
		if form, err := c.MultipartForm(); err == nil {
			for k, v := range form.Value {
				if len(v) > 0 {
					fields[k] = v[0]
				}
			}
		}

		return writeJSON(c, s.deps.Analyzer.Analyze(c.UserContext(), m, fh.Filename, f, fields))
	}
}

func subScores(s scoring.SubScores) map[string]any {
	out := map[string]any{
		"nlp":     s.NLP,
		"emotion": s.Emotion,
		"tone":    s.Tone,
		"posture": nil,
	}
	if s.Posture != nil {
		out["posture"] = *s.Posture
	}
	return out
}

// writeJSON sends m after dropping non-finite numbers.
func writeJSON(c *fiber.Ctx, m map[string]any) error {
	return c.JSON(normalize.PlainMap(m))
}
