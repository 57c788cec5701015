package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/interview"
	"github.com/spigell/interview-scorer/internal/metrics"
	"github.com/spigell/interview-scorer/internal/session"
)

const (
	PromptNext  = "Next question"
	PromptRetry = "Answer again"
	PromptReset = "Restart the interview"
	PromptExit  = "Exit"
)

var errExit = errors.New("exit requested")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interactive interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().BoolP("memory", "m", false, "keep the session in memory instead of the configured store")
	interviewCmd.Flags().StringP("domain", "D", "", "question domain, asked interactively when unset")
	interviewCmd.Flags().StringP("email", "e", "", "candidate email, asked interactively when unset")
}

func runInterview(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if memory, _ := cmd.Flags().GetBool("memory"); memory {
		config.Store.Driver = storeMemory
	}

	// Metrics are only exposed by the HTTP server.
	var m *metrics.Metrics
	parts, err := buildComponents(ctx, config, m, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer parts.close()

	key, err := askSession(cmd, parts)
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return
		}
		logger.Fatal("starting the interview", zap.Error(err))
	}

	record, err := parts.service.Start(ctx, key)
	if err != nil {
		logger.Fatal("starting the interview", zap.Error(err))
	}

	logger.Info("starting the interview",
		zap.String("domain", key.Domain),
		zap.String("interview_id", key.InterviewID),
		zap.Int("answered", len(record.Results)),
		zap.Int("served", record.CurrentQuestion),
	)

	if err := interviewLoop(ctx, parts.service, key); err != nil && !errors.Is(err, errExit) {
		if errors.Is(err, promptui.ErrInterrupt) {
			return
		}
		logger.Fatal("interview failed", zap.Error(err))
	}

	printSummary(ctx, parts.service, key)
}

func askSession(cmd *cobra.Command, parts *components) (session.Key, error) {
	domain, _ := cmd.Flags().GetString("domain")
	if strings.TrimSpace(domain) == "" {
		domains, err := parts.questions.Domains()
		if err != nil {
			return session.Key{}, err
		}
		if len(domains) == 0 {
			return session.Key{}, errors.New("no question banks found")
		}

		domainPrompt := promptui.Select{
			Label: "Choose a domain",
			Items: domains,
		}
		if _, domain, err = domainPrompt.Run(); err != nil {
			return session.Key{}, err
		}
	}

	email, _ := cmd.Flags().GetString("email")
	if strings.TrimSpace(email) == "" {
		emailPrompt := promptui.Prompt{
			Label: "Email",
			Validate: func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("email must contain @")
				}
				return nil
			},
		}
		var err error
		if email, err = emailPrompt.Run(); err != nil {
			return session.Key{}, err
		}
	}

	idPrompt := promptui.Prompt{
		Label:   "Interview id",
		Default: uuid.NewString(),
	}
	interviewID, err := idPrompt.Run()
	if err != nil {
		return session.Key{}, err
	}

	return session.NewKey(email, interviewID, domain)
}

func interviewLoop(ctx context.Context, svc *interview.Service, key session.Key) error {
	for {
		next, err := svc.Next(ctx, key)
		if err != nil {
			return err
		}
		if next.Done {
			fmt.Printf("\nAll %d questions answered.\n", next.Total)
			return nil
		}

		for answered := false; !answered; {
			fmt.Printf("\nQuestion %d/%d: %s\n", next.Index, next.Total, next.Question.Text)

			answerPrompt := promptui.Prompt{Label: "Your answer"}
			answer, err := answerPrompt.Run()
			if err != nil {
				return err
			}

			report, err := svc.Submit(ctx, interview.Submission{
				Key:        key,
				QuestionID: next.Question.ID,
				Answer:     answer,
			})
			if err != nil {
				return err
			}
			printReport(report)

			action, err := askAction()
			if err != nil {
				return err
			}
			switch action {
			case PromptNext:
				answered = true
			case PromptRetry:
			case PromptReset:
				if err := svc.Reset(ctx, key); err != nil {
					return err
				}
				answered = true
			case PromptExit:
				return errExit
			default:
				return fmt.Errorf("invalid action: %s", action)
			}
		}
	}
}

func askAction() (string, error) {
	prompt := promptui.Select{
		Label: "Proceed?",
		Items: []string{PromptNext, PromptRetry, PromptReset, PromptExit},
	}
	_, action, err := prompt.Run()
	return action, err
}

func printReport(r interview.Report) {
	fmt.Printf("\nScore: %d%% (%s)\n", int(r.FinalScore*100+0.5), r.Rating)
	fmt.Printf("Content: %.0f/100 [%s]\n", r.DomainEvaluation.Score, r.DomainEvaluation.Tier)
	fmt.Printf("\n%s\n", r.Feedback)
	if !r.Persisted {
		fmt.Println("\n(result was not saved)")
	}
}

func printSummary(ctx context.Context, svc *interview.Service, key session.Key) {
	record, err := svc.Session(ctx, key)
	if err != nil || len(record.Results) == 0 {
		return
	}

	var total float64
	for _, r := range record.Results {
		total += r.FinalScore
	}
	avg := total / float64(len(record.Results))
	fmt.Printf("\nAnswered %d questions, average score %d%%.\n", len(record.Results), int(avg*100+0.5))
}
