package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/session"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

type sessionQuery struct {
	Email       string `query:"email" json:"email" validate:"required"`
	InterviewID string `query:"interview_id" json:"interview_id" validate:"required"`
	Domain      string `query:"domain" json:"domain" validate:"required"`
}

func (q sessionQuery) key() (session.Key, error) {
	return session.NewKey(q.Email, q.InterviewID, q.Domain)
}

type evaluateRequest struct {
	UserResponse  string `json:"user_response"`
	ReferenceText string `json:"reference_text" validate:"required"`
}

type feedbackRequest struct {
	NLP         map[string]any `json:"nlp" validate:"required"`
	Emotion     map[string]any `json:"emotion"`
	Posture     map[string]any `json:"posture"`
	Tone        map[string]any `json:"tone"`
	Email       string         `json:"email"`
	InterviewID string         `json:"interview_id"`
}

type submitRequest struct {
	sessionQuery
	QuestionID string         `json:"question_id" validate:"required"`
	Answer     string         `json:"answer"`
	Emotion    map[string]any `json:"emotion"`
	Tone       map[string]any `json:"tone"`
	Posture    map[string]any `json:"posture"`
}

// parseBody decodes the JSON body into v and validates it.
func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.InvalidInput("invalid request body: %v", err)
	}
	return check(v)
}

func parseQuery(c *fiber.Ctx, v any) error {
	if err := c.QueryParser(v); err != nil {
		return apperr.InvalidInput("invalid query: %v", err)
	}
	return check(v)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.InvalidInput("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), message(e)))
	}
	return apperr.InvalidInput("%s", strings.Join(msgs, "; "))
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	default:
		return "failed " + e.Tag() + " validation"
	}
}
