// Package config loads the SmartRouter configuration surface from a YAML
// file, environment variables, and built-in defaults via viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Candidate Candidate `mapstructure:"candidate"`
	Quality   Quality   `mapstructure:"quality"`
	Router    Router    `mapstructure:"router"`
	Centroid  Centroid  `mapstructure:"centroid"`
	Embedding Embedding `mapstructure:"embedding"`
	Cache     Cache     `mapstructure:"cache"`
	Budget    Budget    `mapstructure:"budget"`
	SM2       SM2       `mapstructure:"sm2"`
	Gemini    Gemini    `mapstructure:"gemini"`
	Database  Database  `mapstructure:"database"`
	Server    Server    `mapstructure:"server"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug     bool   `mapstructure:"debug"`
	DataDir   string `mapstructure:"data_dir"`
	ScheduleDir string `mapstructure:"schedule_dir"`
}

// Candidate holds ConceptCandidate admission thresholds (spec.md §6).
type Candidate struct {
	MinTextLength  int `mapstructure:"min_text_length"`
	MaxTextLength  int `mapstructure:"max_text_length"`
	MinWordCount   int `mapstructure:"min_word_count"`
	MinQualityScore float64 `mapstructure:"min_quality_score"`
}

// Quality holds the ConceptCandidate quality-score weights.
type Quality struct {
	UniquenessWeight           float64 `mapstructure:"uniqueness_weight"`
	LengthWeight                float64 `mapstructure:"length_weight"`
	AvgWordLengthNormalization  float64 `mapstructure:"avg_word_length_normalization"`
	ShortTextQualityScore       float64 `mapstructure:"short_text_quality_score"`
}

// Router holds SmartRouter decision-gate and context-filter thresholds.
type Router struct {
	HighConfidenceThreshold float64 `mapstructure:"high_confidence_threshold"`
	LowConfidenceThreshold  float64 `mapstructure:"low_confidence_threshold"`
	DupHighThreshold        float64 `mapstructure:"dup_high_threshold"`
	ReferenceThreshold      float64 `mapstructure:"reference_threshold"`

	EnableFolderCreation   bool `mapstructure:"enable_folder_creation"`
	GrowingCap             int  `mapstructure:"growing_cap"`
	MaxContextFolders      int  `mapstructure:"max_context_folders"`
	TokenEstimatePerFolder int  `mapstructure:"token_estimate_per_folder"`

	ScoreWeightCentroid float64 `mapstructure:"score_weight_centroid"`
	ScoreWeightExemplar float64 `mapstructure:"score_weight_exemplar"`
	ScoreWeightMember   float64 `mapstructure:"score_weight_member"`

	ClusterTau     float64 `mapstructure:"cluster_tau"`
	MinClusterSize int     `mapstructure:"min_cluster_size"`

	MaxConcurrentRoutes int `mapstructure:"max_concurrent_routes"`
}

// Centroid holds CentroidManager tuning parameters.
type Centroid struct {
	DefaultExemplarCount       int     `mapstructure:"default_exemplar_count"`
	ExemplarStrategy           string  `mapstructure:"exemplar_strategy"`
	ExemplarWeight             float64 `mapstructure:"exemplar_weight"`
	IncrementalUpdateThreshold int     `mapstructure:"incremental_update_threshold"`
	StaleThresholdDays         int     `mapstructure:"stale_threshold_days"`
	BatchSize                  int     `mapstructure:"batch_size"`
	ParallelUpdates            int     `mapstructure:"parallel_updates"`
	MinFolderSimilarity        float64 `mapstructure:"min_folder_similarity"`
	SimilarityMetric           string  `mapstructure:"similarity_metric"`
	MemberCacheSize            int     `mapstructure:"member_cache_size"`
}

// Embedding holds the global embedding dimension.
type Embedding struct {
	Dimensions int `mapstructure:"dimensions"`
}

// Cache holds ContentCache policy knobs.
type Cache struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Persist         bool          `mapstructure:"persist"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
}

// Budget holds daily LLM throttling limits.
type Budget struct {
	DailyTokenBudget  int           `mapstructure:"daily_token_budget"`
	DailyRequestLimit int           `mapstructure:"daily_request_limit"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SM2 holds the spaced-repetition scheduler's tunables.
type SM2 struct {
	InitialEaseFactor  float64 `mapstructure:"initial_ease_factor"`
	MinEaseFactor      float64 `mapstructure:"min_ease_factor"`
	MatureIntervalDays float64 `mapstructure:"mature_interval_days"`
}

// Gemini holds the concrete Distiller/Embedder provider configuration.
type Gemini struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Timeout        string  `mapstructure:"timeout"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// Database holds the Postgres/pgvector connection configuration.
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
	MaxConnections   int    `mapstructure:"max_connections"`
	IdleConnections  int    `mapstructure:"idle_connections"`
}

// Server holds the HTTP API server configuration.
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration for the HTTP API.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Logging holds structured-logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var globalConfig *Config

// Load reads configuration from configFile (or the default search path if
// empty), environment variables, and a ".env" file, rejecting unknown keys.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".smartrouter")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config (unknown key?): %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading defaults if necessary.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration. Used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".smartrouter")
	viper.SetDefault("app.schedule_dir", ".smartrouter/schedules")

	viper.SetDefault("candidate.min_text_length", 20)
	viper.SetDefault("candidate.max_text_length", 4000)
	viper.SetDefault("candidate.min_word_count", 4)
	viper.SetDefault("candidate.min_quality_score", 0.3)

	viper.SetDefault("quality.uniqueness_weight", 0.5)
	viper.SetDefault("quality.length_weight", 0.5)
	viper.SetDefault("quality.avg_word_length_normalization", 8.0)
	viper.SetDefault("quality.short_text_quality_score", 0.2)

	viper.SetDefault("router.high_confidence_threshold", 0.75)
	viper.SetDefault("router.low_confidence_threshold", 0.55)
	viper.SetDefault("router.dup_high_threshold", 0.85)
	viper.SetDefault("router.reference_threshold", 0.65)
	viper.SetDefault("router.enable_folder_creation", true)
	viper.SetDefault("router.growing_cap", 25)
	viper.SetDefault("router.max_context_folders", 40)
	viper.SetDefault("router.token_estimate_per_folder", 200)
	viper.SetDefault("router.score_weight_centroid", 0.5)
	viper.SetDefault("router.score_weight_exemplar", 0.3)
	viper.SetDefault("router.score_weight_member", 0.2)
	viper.SetDefault("router.cluster_tau", 0.75)
	viper.SetDefault("router.min_cluster_size", 3)
	viper.SetDefault("router.max_concurrent_routes", 8)

	viper.SetDefault("centroid.default_exemplar_count", 5)
	viper.SetDefault("centroid.exemplar_strategy", "hybrid")
	viper.SetDefault("centroid.exemplar_weight", 0.4)
	viper.SetDefault("centroid.incremental_update_threshold", 5)
	viper.SetDefault("centroid.stale_threshold_days", 30)
	viper.SetDefault("centroid.batch_size", 20)
	viper.SetDefault("centroid.parallel_updates", 4)
	viper.SetDefault("centroid.min_folder_similarity", 0.5)
	viper.SetDefault("centroid.similarity_metric", "cosine")
	viper.SetDefault("centroid.member_cache_size", 2000)

	viper.SetDefault("embedding.dimensions", 768)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_size", 10000)
	viper.SetDefault("cache.default_ttl", "168h")
	viper.SetDefault("cache.cleanup_interval", "10m")
	viper.SetDefault("cache.persist", false)
	viper.SetDefault("cache.sqlite_path", ".smartrouter/cache.db")

	viper.SetDefault("budget.daily_token_budget", 500000)
	viper.SetDefault("budget.daily_request_limit", 2000)
	viper.SetDefault("budget.request_timeout", "30s")

	viper.SetDefault("sm2.initial_ease_factor", 2.5)
	viper.SetDefault("sm2.min_ease_factor", 1.3)
	viper.SetDefault("sm2.mature_interval_days", 21.0)

	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("gemini.timeout", "30s")
	viper.SetDefault("gemini.temperature", 0.2)
	viper.SetDefault("gemini.max_retries", 3)

	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.idle_connections", 2)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

func bindEnvironmentVariables() {
	bindEnvKeys("gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys("database.connection_string", []string{
		"SMARTROUTER_DATABASE_URL",
		"DATABASE_URL",
	})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	_ = viper.BindEnv(append([]string{viperKey}, envKeys...)...)
}

func validateConfig(cfg *Config) error {
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: embedding.dimensions must be positive")
	}
	if cfg.Router.HighConfidenceThreshold <= cfg.Router.LowConfidenceThreshold {
		return fmt.Errorf("config: router.high_confidence_threshold must exceed router.low_confidence_threshold")
	}
	sum := cfg.Router.ScoreWeightCentroid + cfg.Router.ScoreWeightExemplar + cfg.Router.ScoreWeightMember
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: router score weights must sum to 1, got %f", sum)
	}
	switch cfg.Centroid.ExemplarStrategy {
	case "medoid", "boundary", "diverse", "hybrid":
	default:
		return fmt.Errorf("config: centroid.exemplar_strategy %q is not one of medoid|boundary|diverse|hybrid", cfg.Centroid.ExemplarStrategy)
	}
	switch cfg.Centroid.SimilarityMetric {
	case "cosine", "euclidean", "dot":
	default:
		return fmt.Errorf("config: centroid.similarity_metric %q is not one of cosine|euclidean|dot", cfg.Centroid.SimilarityMetric)
	}
	return nil
}

// GeminiTimeout parses Gemini.Timeout, falling back to 30s if unparseable.
func (c *Config) GeminiTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gemini.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
