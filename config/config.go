package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the plant care assistant.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Identify     IdentifyConfig     `mapstructure:"identify"`
	Weather      WeatherConfig      `mapstructure:"weather"`
	WebSearch    WebSearchConfig    `mapstructure:"web_search"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Feedback     FeedbackConfig     `mapstructure:"feedback"`
	Session      SessionConfig      `mapstructure:"session"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains language model provider settings.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Strategy selects which orchestration engine handles a turn.
type Strategy string

const (
	StrategyPipeline Strategy = "pipeline"
	StrategyPlanner  Strategy = "planner"
)

// WebSearchMode controls when the pipeline escalates to web search.
type WebSearchMode string

const (
	// WebSearchAuto triggers web search only when knowledge results are sparse.
	WebSearchAuto WebSearchMode = "auto"
	// WebSearchAlways triggers web search on every turn.
	WebSearchAlways WebSearchMode = "always"
)

// OrchestratorConfig controls the orchestration core.
type OrchestratorConfig struct {
	Strategy              Strategy      `mapstructure:"strategy"`
	WebSearchMode         WebSearchMode `mapstructure:"web_search_mode"`
	CompletenessThreshold float64       `mapstructure:"completeness_threshold"`
	MaxPlanIterations     int           `mapstructure:"max_plan_iterations"`
	CapabilityTimeout     time.Duration `mapstructure:"capability_timeout"`
	// MaxStoredTurns caps how many finished turns stay available for
	// feedback and lookup; the oldest are evicted first. <= 0 means unbounded.
	MaxStoredTurns int `mapstructure:"max_stored_turns"`
}

// IdentifyConfig contains plant identification settings.
type IdentifyConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Endpoint      string        `mapstructure:"endpoint"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// WeatherConfig contains weather lookup settings.
type WeatherConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// WebSearchConfig contains web search settings.
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // tavily, serper
	TavilyAPIKey string        `mapstructure:"tavily_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxCalls     int           `mapstructure:"max_calls"`
	MaxResults   int           `mapstructure:"max_results"`
	CallDelay    time.Duration `mapstructure:"call_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// KnowledgeConfig controls the semantic knowledge store.
type KnowledgeConfig struct {
	PersistPath string  `mapstructure:"persist_path"`
	Compress    bool    `mapstructure:"compress"`
	SearchTopK  int     `mapstructure:"search_top_k"`
	MinResults  int     `mapstructure:"min_results"`
	MaxResults  int     `mapstructure:"max_results"`
	MinScore    float64 `mapstructure:"min_score"`
}

// FeedbackConfig controls feedback-driven knowledge updates.
type FeedbackConfig struct {
	UpdateThreshold int `mapstructure:"update_threshold"`
	MaxQueryLen     int `mapstructure:"max_query_len"`
	MaxResponseLen  int `mapstructure:"max_response_len"`
}

// SessionConfig controls conversation history storage.
type SessionConfig struct {
	Backend string      `mapstructure:"backend"` // inmemory, redis
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	LogFile      string `mapstructure:"log_file"`
}

// Validate checks orchestrator settings for nonsensical values.
func (c OrchestratorConfig) Validate() error {
	switch c.Strategy {
	case StrategyPipeline, StrategyPlanner:
	default:
		return fmt.Errorf("orchestrator.strategy must be %q or %q", StrategyPipeline, StrategyPlanner)
	}
	switch c.WebSearchMode {
	case WebSearchAuto, WebSearchAlways:
	default:
		return fmt.Errorf("orchestrator.web_search_mode must be %q or %q", WebSearchAuto, WebSearchAlways)
	}
	if c.CompletenessThreshold < 0 || c.CompletenessThreshold > 1 {
		return fmt.Errorf("orchestrator.completeness_threshold must be in [0,1]")
	}
	return nil
}

// Validate checks feedback thresholds.
func (c FeedbackConfig) Validate() error {
	if c.UpdateThreshold < 0 || c.UpdateThreshold > 100 {
		return fmt.Errorf("feedback.update_threshold must be in [0,100]")
	}
	return nil
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("session.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("session.redis.port required")
	}
	return nil
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", 60*time.Second)
	viper.SetDefault("server.address", ":8080")

	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.chat_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("llm.timeout", 60*time.Second)

	viper.SetDefault("orchestrator.strategy", string(StrategyPipeline))
	viper.SetDefault("orchestrator.web_search_mode", string(WebSearchAuto))
	viper.SetDefault("orchestrator.completeness_threshold", 0.8)
	viper.SetDefault("orchestrator.max_plan_iterations", 3)
	viper.SetDefault("orchestrator.capability_timeout", 30*time.Second)
	viper.SetDefault("orchestrator.max_stored_turns", 1000)

	viper.SetDefault("identify.endpoint", "https://api.plant.id/v3/identification")
	viper.SetDefault("identify.min_confidence", 0.7)
	viper.SetDefault("identify.timeout", 30*time.Second)

	viper.SetDefault("weather.endpoint", "https://api.openweathermap.org/data/2.5/weather")
	viper.SetDefault("weather.timeout", 10*time.Second)

	viper.SetDefault("web_search.provider", "tavily")
	viper.SetDefault("web_search.max_calls", 5)
	viper.SetDefault("web_search.max_results", 3)
	viper.SetDefault("web_search.call_delay", 500*time.Millisecond)
	viper.SetDefault("web_search.timeout", 15*time.Second)

	viper.SetDefault("knowledge.search_top_k", 5)
	viper.SetDefault("knowledge.min_results", 2)
	viper.SetDefault("knowledge.max_results", 5)
	viper.SetDefault("knowledge.min_score", 0.0)

	viper.SetDefault("feedback.update_threshold", 70)
	viper.SetDefault("feedback.max_query_len", 500)
	viper.SetDefault("feedback.max_response_len", 2000)

	viper.SetDefault("session.backend", "inmemory")
	viper.SetDefault("session.redis.host", "localhost")
	viper.SetDefault("session.redis.port", "6379")
	viper.SetDefault("session.redis.ttl", 24*time.Hour)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
}

// LoadConfig loads config from file, applying defaults and LEAFWISE_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("LEAFWISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Orchestrator.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Feedback.Validate(); err != nil {
		return nil, err
	}
	if cfg.Session.Backend == "redis" {
		if err := cfg.Session.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
