package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/ai/gemini"
	"github.com/spigell/interview-scorer/internal/ai/openaicompat"
	"github.com/spigell/interview-scorer/internal/evaluation"
	"github.com/spigell/interview-scorer/internal/interview"
	"github.com/spigell/interview-scorer/internal/metrics"
	"github.com/spigell/interview-scorer/internal/questions"
	"github.com/spigell/interview-scorer/internal/scoring"
	"github.com/spigell/interview-scorer/internal/secrets"
	"github.com/spigell/interview-scorer/internal/session"
)

const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

// components are the long-lived collaborators shared by the commands.
type components struct {
	service   *interview.Service
	questions *questions.Bank
	evaluator *evaluation.Evaluator
	close     func()
}

func buildComponents(ctx context.Context, config *Config, m *metrics.Metrics, logger *zap.Logger) (*components, error) {
	store, closeStore, err := newStore(ctx, config.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	evaluator, err := newEvaluator(ctx, config, m, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	bank := questions.NewBank(config.Questions.Dir)
	svc := interview.NewService(interview.Deps{
		Questions: bank,
		Sessions:  session.NewTracker(store, logger),
		Evaluator: evaluator,
		Recorder:  m,
		Logger:    logger,
	})

	return &components{
		service:   svc,
		questions: bank,
		evaluator: evaluator,
		close:     closeStore,
	}, nil
}

func newStore(ctx context.Context, config StoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch driver := strings.ToLower(strings.TrimSpace(config.Driver)); driver {
	case storeMemory:
		logger.Warn("using in-memory session store", zap.String("hint", "sessions are lost on restart"))
		return session.NewMemoryStore(), func() {}, nil
	case "", storeRedis:
		client, err := session.NewRedisClient(ctx, config.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		}
		return session.NewRedisStore(client, config.Redis.KeyPrefix), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", config.Driver)
	}
}

func newEvaluator(ctx context.Context, config *Config, m *metrics.Metrics, logger *zap.Logger) (*evaluation.Evaluator, error) {
	fusion, err := newFusionEngine(config.Fusion)
	if err != nil {
		return nil, fmt.Errorf("fusion weights: %w", err)
	}

	opts := evaluation.Options{
		Fusion:       fusion,
		StageTimeout: config.Evaluation.StageTimeout,
		Logger:       logger,
		Recorder:     m,
	}

	primary, err := newPrimaryModel(ctx, config.AI.Gemini, logger)
	if err != nil {
		logger.Warn("skipping primary model stage", zap.Error(err))
	} else if primary != nil {
		opts.Primary = primary
	}

	judge, err := newJudge(config.AI.Judge, logger)
	if err != nil {
		logger.Warn("skipping remote judge and feedback writer stages", zap.Error(err))
	} else if judge != nil {
		opts.Judge = judge
		opts.Writer = judge
	}

	evaluator, err := evaluation.New(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("evaluation chains ready",
		zap.Any("domain", evaluator.DomainStages()),
		zap.Any("feedback", evaluator.FeedbackStages()),
	)
	return evaluator, nil
}

func newFusionEngine(config FusionConfig) (*scoring.Engine, error) {
	if len(config.Weights) == 0 {
		return scoring.NewEngine(nil)
	}
	weights := make(scoring.Weights, len(config.Weights))
	for k, v := range config.Weights {
		weights[scoring.Modality(strings.ToLower(k))] = v
	}
	return scoring.NewEngine(weights)
}

// newPrimaryModel returns nil without an error when the stage is disabled.
func newPrimaryModel(ctx context.Context, config *GeminiConfig, logger *zap.Logger) (*gemini.Generator, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  config.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	return gemini.NewGenerator(ctx, gemini.Config{
		APIKey:       apiKey,
		Model:        config.Model,
		MaxRetries:   config.MaxRetries,
		MaxLogLength: config.MaxLogLength,
	}, logger.With(zap.Int("ai_retry_attempts", config.MaxRetries)))
}

// newJudge returns nil without an error when the stages are disabled.
func newJudge(config *JudgeConfig, logger *zap.Logger) (*openaicompat.Client, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "judge api key",
		File:  config.APIKeyFile,
		Env:   "GROQ_API_KEY",
		Value: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.judge.api-key-file or GROQ_API_KEY)", err)
	}

	return openaicompat.New(openaicompat.Config{
		BaseURL:      config.BaseURL,
		APIKey:       apiKey,
		Model:        config.Model,
		MaxRetries:   config.MaxRetries,
		MaxLogLength: config.MaxLogLength,
		Timeout:      config.Timeout,
	}, logger)
}
