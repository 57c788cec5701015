package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/analyzer"
	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/server"
	"github.com/spigell/interview-scorer/internal/session"
)

const (
	app = "interview-scorer"
)

type Config struct {
	Server     server.Config    `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Questions  QuestionsConfig  `mapstructure:"questions"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	AI         AIConfig         `mapstructure:"ai"`
	Analyzers  analyzer.Config  `mapstructure:"analyzers"`
}

type StoreConfig struct {
	Driver string              `mapstructure:"driver"`
	Redis  session.RedisConfig `mapstructure:"redis"`
}

type QuestionsConfig struct {
	Dir string `mapstructure:"dir"`
}

type FusionConfig struct {
	Weights map[string]float64 `mapstructure:"weights"`
}

type EvaluationConfig struct {
	StageTimeout time.Duration `mapstructure:"stage-timeout"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
	// Judge configures the OpenAI-compatible endpoint used both as remote judge
	// and as feedback writer.
	Judge *JudgeConfig `mapstructure:"judge"`
}

type GeminiConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type JudgeConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base-url"`
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Model        string        `mapstructure:"model"`
	MaxRetries   int           `mapstructure:"max-retries"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "interview-scorer grades interview answers and serves question sessions",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(loadDotEnv, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is interview-scorer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()

	for key, env := range map[string]string{
		"store.redis.addr":     "REDIS_ADDR",
		"store.redis.password": "REDIS_PASSWORD",
		"questions.dir":        "QUESTIONS_DIR",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("server.addr", ":5000")
	viper.SetDefault("server.read-timeout", "30s")
	viper.SetDefault("server.write-timeout", "120s")

	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.redis.addr", "localhost:6379")
	viper.SetDefault("store.redis.key-prefix", app)

	viper.SetDefault("questions.dir", "data")
	viper.SetDefault("evaluation.stage-timeout", "25s")

	viper.SetDefault("ai.gemini.enabled", true)
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.judge.enabled", true)
	viper.SetDefault("ai.judge.max-retries", 2)

	viper.SetDefault("analyzers.timeout", "60s")
}

// loadDotEnv exports variables from an optional .env file.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
	case cfgFile == "" && errors.As(err, &notFound):
		// Defaults and environment are enough to run.
	default:
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}
