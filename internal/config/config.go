// Package config holds operator-level configuration for a warden process:
// data directory, retrieval tuning, agent backend selection, and model
// identifiers. Values merge from env vars (WARDEN_*) and an optional
// warden.config.yaml, with defaults for everything except the hosted-API
// key, which stays in the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the WARDEN_ prefix
// (e.g. "top_k" → WARDEN_TOP_K) and to a YAML field in warden.config.yaml.
const (
	KeyDataDir           = "data_dir"
	KeyTopK              = "top_k"
	KeyMinSimilarity     = "min_similarity"
	KeyMemoryBackend     = "memory_backend"
	KeyMemoryMode        = "memory_mode"
	KeyAgentBackend      = "agent_backend"
	KeyStudentProvider   = "student_provider"
	KeyStudentModel      = "student_model"
	KeyStudentTemp       = "student_temperature"
	KeyStudentMaxTokens  = "student_max_tokens"
	KeyExpertProvider    = "expert_provider"
	KeyExpertModel       = "expert_model"
	KeyExpertTemp        = "expert_temperature"
	KeyExpertMaxTokens   = "expert_max_tokens"
	KeyAPIKey            = "api_key"
	KeyOllamaBaseURL     = "ollama_base_url"
	KeyRequestsPerSecond = "requests_per_second"
	KeyDatasetPath       = "dataset_path"
	KeyResultsPath       = "results_path"
	KeyMaxEvents         = "max_events"
	KeyAuditEvery        = "audit_every"
)

// Backend and mode values accepted by validation.
const (
	MemoryBackendTFIDF = "tfidf"
	MemoryBackendBM25  = "bm25"

	MemoryModeState        = "state"
	MemoryModeStateComment = "state+comment"

	AgentBackendLLM   = "llm"
	AgentBackendRules = "rules"
)

// Defaults. Model choices follow the asymmetric pairing the system is built
// around: a small fast Student, a large careful Expert.
const (
	DefaultTopK             = 5
	DefaultMinSimilarity    = 0.05
	DefaultMemoryBackend    = MemoryBackendTFIDF
	DefaultMemoryMode       = MemoryModeStateComment
	DefaultAgentBackend     = AgentBackendLLM
	DefaultStudentProvider  = "together"
	DefaultStudentModel     = "Qwen/Qwen2.5-7B-Instruct-Turbo"
	DefaultStudentTemp      = 0.4
	DefaultStudentMaxTokens = 256
	DefaultExpertProvider   = "together"
	DefaultExpertModel      = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	DefaultExpertTemp       = 0.2
	DefaultExpertMaxTokens  = 512
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultAuditEvery       = 10
)

// Config is the resolved configuration for a warden process.
type Config struct {
	DataDir string

	TopK          int
	MinSimilarity float64
	MemoryBackend string
	MemoryMode    string

	AgentBackend      string
	StudentProvider   string
	StudentModel      string
	StudentTemp       float64
	StudentMaxTokens  int
	ExpertProvider    string
	ExpertModel       string
	ExpertTemp        float64
	ExpertMaxTokens   int
	APIKey            string
	OllamaBaseURL     string
	RequestsPerSecond float64

	DatasetPath string
	ResultsPath string
	MaxEvents   int
	AuditEvery  int
}

// StateDBPath returns the path to the user-state SQLite database.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// MemoryDBPath returns the path to the retrieval-memory SQLite database.
func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.DataDir, "memory.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("WARDEN")
	viper.AutomaticEnv()
	viper.SetDefault(KeyTopK, DefaultTopK)
	viper.SetDefault(KeyMinSimilarity, DefaultMinSimilarity)
	viper.SetDefault(KeyMemoryBackend, DefaultMemoryBackend)
	viper.SetDefault(KeyMemoryMode, DefaultMemoryMode)
	viper.SetDefault(KeyAgentBackend, DefaultAgentBackend)
	viper.SetDefault(KeyStudentProvider, DefaultStudentProvider)
	viper.SetDefault(KeyStudentModel, DefaultStudentModel)
	viper.SetDefault(KeyStudentTemp, DefaultStudentTemp)
	viper.SetDefault(KeyStudentMaxTokens, DefaultStudentMaxTokens)
	viper.SetDefault(KeyExpertProvider, DefaultExpertProvider)
	viper.SetDefault(KeyExpertModel, DefaultExpertModel)
	viper.SetDefault(KeyExpertTemp, DefaultExpertTemp)
	viper.SetDefault(KeyExpertMaxTokens, DefaultExpertMaxTokens)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	viper.SetDefault(KeyAuditEvery, DefaultAuditEvery)
}

// Load reads configuration from Viper (env vars, config file, defaults)
// and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(),
		TopK:              viper.GetInt(KeyTopK),
		MinSimilarity:     viper.GetFloat64(KeyMinSimilarity),
		MemoryBackend:     viper.GetString(KeyMemoryBackend),
		MemoryMode:        viper.GetString(KeyMemoryMode),
		AgentBackend:      viper.GetString(KeyAgentBackend),
		StudentProvider:   viper.GetString(KeyStudentProvider),
		StudentModel:      viper.GetString(KeyStudentModel),
		StudentTemp:       viper.GetFloat64(KeyStudentTemp),
		StudentMaxTokens:  viper.GetInt(KeyStudentMaxTokens),
		ExpertProvider:    viper.GetString(KeyExpertProvider),
		ExpertModel:       viper.GetString(KeyExpertModel),
		ExpertTemp:        viper.GetFloat64(KeyExpertTemp),
		ExpertMaxTokens:   viper.GetInt(KeyExpertMaxTokens),
		APIKey:            resolveAPIKey(),
		OllamaBaseURL:     viper.GetString(KeyOllamaBaseURL),
		RequestsPerSecond: viper.GetFloat64(KeyRequestsPerSecond),
		DatasetPath:       viper.GetString(KeyDatasetPath),
		ResultsPath:       viper.GetString(KeyResultsPath),
		MaxEvents:         viper.GetInt(KeyMaxEvents),
		AuditEvery:        viper.GetInt(KeyAuditEvery),
	}

	if cfg.DatasetPath == "" {
		cfg.DatasetPath = filepath.Join(cfg.DataDir, "synthetic_comments.json")
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = filepath.Join(cfg.DataDir, "results.jsonl")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// resolveAPIKey checks WARDEN_API_KEY first, then TOGETHER_API_KEY for
// drop-in compatibility with existing Together setups.
func resolveAPIKey() string {
	if key := viper.GetString(KeyAPIKey); key != "" {
		return key
	}
	return os.Getenv("TOGETHER_API_KEY")
}

func (c *Config) validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in [0, 1]")
	}
	switch c.MemoryBackend {
	case MemoryBackendTFIDF, MemoryBackendBM25:
	default:
		return fmt.Errorf("memory_backend must be %q or %q (got %q)",
			MemoryBackendTFIDF, MemoryBackendBM25, c.MemoryBackend)
	}
	switch c.MemoryMode {
	case MemoryModeState, MemoryModeStateComment:
	default:
		return fmt.Errorf("memory_mode must be %q or %q (got %q)",
			MemoryModeState, MemoryModeStateComment, c.MemoryMode)
	}
	switch c.AgentBackend {
	case AgentBackendLLM, AgentBackendRules:
	default:
		return fmt.Errorf("agent_backend must be %q or %q (got %q)",
			AgentBackendLLM, AgentBackendRules, c.AgentBackend)
	}
	if c.StudentMaxTokens <= 0 || c.ExpertMaxTokens <= 0 {
		return fmt.Errorf("max token limits must be positive")
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("max_events must not be negative")
	}
	if c.AuditEvery < 0 {
		return fmt.Errorf("audit_every must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}
