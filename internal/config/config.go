// Package config loads typed configuration from the environment.
//
// Settings come from the environment. An env file named by --env or ENV_FILE,
// or ./.env when present, fills in variables that are not already set.
// Fields tagged required:"true" make loading fail when they are unset.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Memory backends.
const (
	BackendAgentCore = "agentcore"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
)

// WebConfig holds the web tier configuration.
type WebConfig struct {
	AWSRegion            string        `envconfig:"AWS_REGION" default:"us-east-1"`
	AgentRuntime         string        `envconfig:"AGENT_RUNTIME" required:"true"`
	MemoryID             string        `envconfig:"MEMORY_ID" required:"true"`
	EnableAuthentication bool          `envconfig:"ENABLE_AUTHENTICATION" default:"false"`
	CognitoLogoutURL     string        `envconfig:"COGNITO_LOGOUT_URL"`
	HTTPPort             int           `envconfig:"HTTP_PORT" default:"8080"`
	RuntimeEndpoint      string        `envconfig:"RUNTIME_ENDPOINT"`
	RuntimeTimeout       time.Duration `envconfig:"RUNTIME_TIMEOUT" default:"5m"`
	HistoryLimit         int           `envconfig:"HISTORY_LIMIT" default:"10"`
}

// Validate rejects required settings that are present but blank.
func (c WebConfig) Validate() error {
	if strings.TrimSpace(c.AgentRuntime) == "" {
		return errors.New("AGENT_RUNTIME is required")
	}
	if strings.TrimSpace(c.MemoryID) == "" {
		return errors.New("MEMORY_ID is required")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be > 0")
	}
	return nil
}

// AgentConfig holds the agent runtime container configuration.
type AgentConfig struct {
	AWSRegion       string        `envconfig:"AWS_REGION" default:"us-east-1"`
	AppName         string        `envconfig:"APP_NAME" default:"ai-chat-accelerator"`
	KnowledgeBaseID string        `envconfig:"KNOWLEDGE_BASE_ID"`
	MemoryID        string        `envconfig:"MEMORY_ID" required:"true"`
	HTTPPort        int           `envconfig:"HTTP_PORT" default:"8080"`
	MaxToolRounds   int           `envconfig:"MAX_TOOL_ROUNDS" default:"8"`
	ToolTimeout     time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
}

// Validate rejects required settings that are present but blank.
func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.MemoryID) == "" {
		return errors.New("MEMORY_ID is required")
	}
	if c.MaxToolRounds <= 0 {
		return errors.New("MAX_TOOL_ROUNDS must be > 0")
	}
	return nil
}

// MemoryConfig selects and configures the durable memory backend.
type MemoryConfig struct {
	Backend     string `split_words:"true" default:"agentcore"`
	RedisURL    string `split_words:"true" default:"redis://localhost:6379/0"`
	DatabaseURL string `split_words:"true" default:"file:memory.db?cache=shared&mode=rwc"`
	KeyPrefix   string `split_words:"true" default:"chat:memory:"`
	// TTL expires idle redis sessions. Zero keeps them.
	TTL time.Duration `default:"0s"`
}

// Validate checks that the backend is known.
func (c MemoryConfig) Validate() error {
	if c.TTL < 0 {
		return errors.New("MEMORY_TTL must not be negative")
	}
	switch c.Backend {
	case BackendAgentCore, BackendRedis, BackendSQLite:
		return nil
	}
	return fmt.Errorf("unknown memory backend %q", c.Backend)
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `default:"false"`
	Endpoint    string  `default:"localhost:4318"`
	ServiceName string  `split_words:"true"`
	SampleRate  float64 `split_words:"true" default:"1.0"`
	Insecure    bool    `default:"true"`
}

// LLMConfig configures the OpenAI-compatible chat completions endpoint used by
// the agent. Defaults target OpenRouter.
type LLMConfig struct {
	BaseURL             string        `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey              string        `envconfig:"API_KEY" required:"true"`
	Model               string        `envconfig:"MODEL" required:"true"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" default:"2000"`
	Temperature         float64       `envconfig:"TEMPERATURE" default:"0.5"`
	Timeout             time.Duration `envconfig:"TIMEOUT" default:"60s"`
	SiteURL             string        `envconfig:"SITE_URL"`
	SiteName            string        `envconfig:"SITE_NAME"`
}

// MustLoad is Load that panics on error.
func MustLoad[T any](prefix string) *T {
	conf, err := Load[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// Load fills T from the environment under prefix. The env file is applied
// once per process before the first Load.
func Load[T any](prefix string) (*T, error) {
	if err := applyEnvFileOnce(); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("load %T: %w", conf, err)
	}
	return &conf, nil
}

var envFileFlag = flag.String("env", "", "path to an env file (default ./.env when present)")

var applyEnvFileOnce = sync.OnceValue(func() error {
	path, required := envFilePath()
	if path == "" {
		return nil
	}
	if _, err := applyEnvFile(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
})

// envFilePath picks the --env flag, then ENV_FILE, then ./.env. Only an
// explicitly named file is required to exist.
func envFilePath() (path string, required bool) {
	if !flag.Parsed() {
		flag.Parse()
	}
	if p := strings.TrimSpace(*envFileFlag); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(os.Getenv("ENV_FILE")); p != "" {
		return p, true
	}
	if info, err := os.Stat(".env"); err == nil && !info.IsDir() {
		return ".env", false
	}
	return "", false
}

// applyEnvFile exports the file's settings into the environment without
// overriding variables that are already set. It returns how many were set.
func applyEnvFile(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return 0, err
	}

	applied := 0
	for _, k := range v.AllKeys() {
		name := strings.ToUpper(k)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, v.GetString(k)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
