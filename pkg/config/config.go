package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Screening ScreeningConfig
	Search    SearchConfig
	LLM       LLMConfig
	Scoring   ScoringConfig
	Storage   StorageConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	DynamoDB  DynamoDBConfig
	Messaging MessagingConfig
	Kafka     KafkaConfig
	Notify    NotifyConfig
	Secrets   SecretsConfig
	AWS       AWSConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	IsDevelopment  bool
}

type ScreeningConfig struct {
	DefaultMaxQueries int
	DefaultNumResults int
	MaxEntityLength   int
	// KeywordsFile optionally replaces the seed taxonomy with an exported one.
	KeywordsFile string
}

type SearchConfig struct {
	Provider     string
	BaseURL      string
	APIKeySecret string
	Country      string
	Language     string
	TimeoutSec   int
	Concurrency  int
	MaxRetries   int
}

type LLMConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKeySecret string
	Temperature  float32
	MaxTokens    int
	TimeoutSec   int
}

type ScoringConfig struct {
	MaxPromptResults int
	ExtractMentions  bool
}

type StorageConfig struct {
	Backend       string
	SearchTTLDays int
	RiskTTLDays   int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type SQLiteConfig struct {
	Path string
}

type DynamoDBConfig struct {
	TableName string
	Endpoint  string
}

type MessagingConfig struct {
	Backend           string
	ScoringTopic      string
	NotificationTopic string
	GeneralTopic      string
	AlertTopic        string
	ReviewTopic       string
	MaxAttempts       int
	BufferSize        int
}

type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	BatchTimeout int
	WriteTimeout int
}

type NotifyConfig struct {
	GeneralSNSTopicARN string
	AlertSNSTopicARN   string
	ReviewSNSTopicARN  string
	SlackWebhookSecret string
	PublishToBus       bool
}

type SecretsConfig struct {
	Provider  string
	EnvPrefix string
}

type AWSConfig struct {
	Region string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/entity-screening")

	return load(v)
}

// LoadFromPath reads an explicit config file, still applying defaults and env overrides.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SCREENING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Screening.DefaultMaxQueries < 1 || c.Screening.DefaultMaxQueries > 10 {
		return fmt.Errorf("screening.defaultMaxQueries must be in [1,10], got %d", c.Screening.DefaultMaxQueries)
	}
	if c.Screening.DefaultNumResults < 1 || c.Screening.DefaultNumResults > 10 {
		return fmt.Errorf("screening.defaultNumResults must be in [1,10], got %d", c.Screening.DefaultNumResults)
	}

	if c.Screening.MaxEntityLength < 1 || c.Screening.MaxEntityLength > 200 {
		return fmt.Errorf("screening.maxEntityLength must be in [1,200], got %d", c.Screening.MaxEntityLength)
	}

	switch c.Storage.Backend {
	case "dynamodb", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Messaging.Backend {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka messaging backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown messaging backend %q", c.Messaging.Backend)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Secrets.Provider {
	case "aws", "env":
	default:
		return fmt.Errorf("unknown secrets provider %q", c.Secrets.Provider)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 64*1024)
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("screening.defaultMaxQueries", 5)
	v.SetDefault("screening.defaultNumResults", 3)
	v.SetDefault("screening.maxEntityLength", 200)

	v.SetDefault("search.provider", "serper")
	v.SetDefault("search.baseURL", "https://google.serper.dev")
	v.SetDefault("search.apiKeySecret", "serper-api-key")
	v.SetDefault("search.country", "us")
	v.SetDefault("search.language", "en")
	v.SetDefault("search.timeoutSec", 30)
	v.SetDefault("search.concurrency", 3)
	v.SetDefault("search.maxRetries", 2)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.apiKeySecret", "llm-api-key")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 1000)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("scoring.maxPromptResults", 20)
	v.SetDefault("scoring.extractMentions", false)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.searchTTLDays", 30)
	v.SetDefault("storage.riskTTLDays", 90)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "screening")

	v.SetDefault("sqlite.path", "./data/screening.db")

	v.SetDefault("dynamodb.tableName", "entity-screening-results")

	v.SetDefault("messaging.backend", "memory")
	v.SetDefault("messaging.scoringTopic", "entity-screening.scoring-requests")
	v.SetDefault("messaging.notificationTopic", "entity-screening.risk-notifications")
	v.SetDefault("messaging.generalTopic", "entity-screening.notifications.general")
	v.SetDefault("messaging.alertTopic", "entity-screening.notifications.alert")
	v.SetDefault("messaging.reviewTopic", "entity-screening.notifications.review")
	v.SetDefault("messaging.maxAttempts", 3)
	v.SetDefault("messaging.bufferSize", 256)

	v.SetDefault("kafka.groupID", "entity-screening")
	v.SetDefault("kafka.batchTimeout", 50)
	v.SetDefault("kafka.writeTimeout", 10)

	v.SetDefault("notify.publishToBus", true)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.envPrefix", "SCREENING_SECRET")

	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("rateLimit.requestsPerMinute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
