package evaluation

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/domain_system.md
	domainSystemPrompt string
	//go:embed prompts/domain.md
	domainPromptTemplate string
	//go:embed prompts/feedback_system.md
	feedbackSystemPrompt string
	//go:embed prompts/feedback.md
	feedbackPromptTemplate string
)

// render substitutes {{KEY}} placeholders.
func render(template string, values map[string]string) string {
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(out)
}

func buildDomainPrompt(in DomainInput) string {
	template := domainPromptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Question:\n{{QUESTION}}\n\nCandidate answer:\n{{CANDIDATE_ANSWER}}\n\nIdeal answer:\n{{IDEAL_ANSWER}}\n\nJSON Response:"
	}
	return render(template, map[string]string{
		"QUESTION":         in.Question,
		"CANDIDATE_ANSWER": in.Answer,
		"IDEAL_ANSWER":     in.IdealAnswer,
	})
}

func buildFeedbackPrompt(analysisJSON string) string {
	template := feedbackPromptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Analysis:\n{{ANALYSIS_JSON}}\n\nJSON Response:"
	}
	return render(template, map[string]string{"ANALYSIS_JSON": analysisJSON})
}
