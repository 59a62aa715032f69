package config

import (
	"strings"
	"time"
)

type Config struct {
	Repo       RepoConfig       `yaml:"repo"`
	Source     SourceConfig     `yaml:"source"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Message    MessageConfig    `yaml:"message"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Meili      MeiliConfig      `yaml:"meili"`
	MinIO      MinIOConfig      `yaml:"minio"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Export     ExportConfig     `yaml:"export"`
	Log        LogConfig        `yaml:"log"`
	Categories CategoriesConfig `yaml:"categories"`
}

type RepoConfig struct {
	Dir          string `yaml:"dir"           env:"RULEHISTORY_REPOS_DIR"     env-default:"./data/repos"`
	Layout       string `yaml:"layout"        env:"RULEHISTORY_LAYOUT"        env-default:"per-category"`
	CombinedName string `yaml:"combined_name" env:"RULEHISTORY_COMBINED_NAME" env-default:"rules"`
	AuthorName   string `yaml:"author_name"   env:"RULEHISTORY_AUTHOR_NAME"   env-default:"ND Court Rules"`
	AuthorEmail  string `yaml:"author_email"  env:"RULEHISTORY_AUTHOR_EMAIL"  env-default:"rules@ndcourts.invalid"`
}

type SourceConfig struct {
	Dir        string `yaml:"dir"         env:"RULEHISTORY_SOURCE_DIR"  env-default:"./data/source"`
	MinutesDir string `yaml:"minutes_dir" env:"RULEHISTORY_MINUTES_DIR"`
}

type FetchConfig struct {
	Concurrency     int           `yaml:"concurrency"      env:"RULEHISTORY_FETCH_CONCURRENCY" env-default:"4"`
	Attempts        int           `yaml:"attempts"         env:"RULEHISTORY_FETCH_ATTEMPTS"    env-default:"3"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"RULEHISTORY_FETCH_BACKOFF"     env-default:"500ms"`
	MaxInterval     time.Duration `yaml:"max_interval"     env:"RULEHISTORY_FETCH_BACKOFF_MAX" env-default:"10s"`
}

type MessageConfig struct {
	// Summarize enables the LLM summarizer when an API key is also set.
	Summarize bool          `yaml:"summarize" env:"RULEHISTORY_SUMMARIZE" env-default:"false"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"RULEHISTORY_SUMMARY_TTL" env-default:"0s"`
}

type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key"     env:"ANTHROPIC_API_KEY"`
	Model       string  `yaml:"model"       env:"ANTHROPIC_MODEL"       env-default:"claude-haiku-4-5-20251001"`
	MaxTokens   int64   `yaml:"max_tokens"  env:"ANTHROPIC_MAX_TOKENS"  env-default:"1000"`
	Temperature float64 `yaml:"temperature" env:"ANTHROPIC_TEMPERATURE" env-default:"0.1"`
}

type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url"            env:"DATABASE_URL"`
	MigrationsDir string `yaml:"migrations_dir" env:"RULEHISTORY_MIGRATIONS_DIR" env-default:"./db/migrations"`
}

type MeiliConfig struct {
	URL       string `yaml:"url"        env:"MEILI_URL"`
	MasterKey string `yaml:"master_key" env:"MEILI_MASTER_KEY"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"   env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"MINIO_BUCKET"     env-default:"rulehistory-runs"`
	UseSSL    bool   `yaml:"use_ssl"    env:"MINIO_USE_SSL"    env-default:"false"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"      env:"SMTP_HOST"`
	Port     string `yaml:"port"      env:"SMTP_PORT"      env-default:"587"`
	Username string `yaml:"username"  env:"SMTP_USERNAME"`
	Password string `yaml:"password"  env:"SMTP_PASSWORD"`
	From     string `yaml:"from"      env:"SMTP_FROM"`
	FromName string `yaml:"from_name" env:"SMTP_FROM_NAME" env-default:"Rule History"`
	// To is a comma-separated operator list for conflict reports.
	To string `yaml:"to" env:"SMTP_TO"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" env:"RULEHISTORY_METRICS_TEXTFILE"`
}

type ExportConfig struct {
	PandocPath string `yaml:"pandoc_path" env:"RULEHISTORY_PANDOC" env-default:"pandoc"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

type CategoriesConfig struct {
	// Default is used when a command is given no --categories.
	Default string `yaml:"default" env:"RULEHISTORY_CATEGORIES"`
	// Names overrides category display names.
	Names map[string]string `yaml:"names"`
}

// DefaultList splits Default on commas.
func (c CategoriesConfig) DefaultList() []string {
	return SplitList(c.Default)
}

func (c SMTPConfig) Recipients() []string {
	return SplitList(c.To)
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && c.To != ""
}

func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
