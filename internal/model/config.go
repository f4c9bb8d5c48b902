package model

import "time"

// Config is the full cogito configuration, loaded by viper from
// ~/.cogito/config.yaml, COGITO_* environment variables and flags
type Config struct {
	LLM         LLMConfig             `json:"llm" yaml:"llm" mapstructure:"llm"`
	Grounding   GroundingRequirements `json:"grounding" yaml:"grounding" mapstructure:"grounding"`
	Planner     PlannerConfig         `json:"planner" yaml:"planner" mapstructure:"planner"`
	Canon       CanonConfig           `json:"canon" yaml:"canon" mapstructure:"canon"`
	Memory      MemoryConfig          `json:"memory" yaml:"memory" mapstructure:"memory"`
	Store       StoreConfig           `json:"store" yaml:"store" mapstructure:"store"`
	Cache       CacheConfig           `json:"cache" yaml:"cache" mapstructure:"cache"`
	Tools       ToolsConfig           `json:"tools" yaml:"tools" mapstructure:"tools"`
	Policy      PolicyConfig          `json:"policy" yaml:"policy" mapstructure:"policy"`
	Logging     LoggingConfig         `json:"logging" yaml:"logging" mapstructure:"logging"`
	Concurrency ConcurrencyConfig     `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// LLMConfig selects and configures the LLM gateway
type LLMConfig struct {
	Provider          string  `json:"provider" yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model             string  `json:"model" yaml:"model" mapstructure:"model"`
	APIKey            string  `json:"-" yaml:"-" mapstructure:"api_key"`
	BaseURL           string  `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `json:"timeout" yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	HTTPProxy         string  `json:"http_proxy,omitempty" yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `json:"https_proxy,omitempty" yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// PlannerConfig controls plan generation
type PlannerConfig struct {
	StrictValidation bool `json:"strict_validation" yaml:"strict_validation" mapstructure:"strict_validation"`
	AuditQueueSize   int  `json:"audit_queue_size" yaml:"audit_queue_size" mapstructure:"audit_queue_size"`
}

// CanonConfig points at the curated canon sources
type CanonConfig struct {
	Paths     []string        `json:"paths" yaml:"paths" mapstructure:"paths"` // YAML canon files or directories of .yaml/.html documents
	Authority AuthorityConfig `json:"authority" yaml:"authority" mapstructure:"authority"`
}

// AuthorityConfig classifies canon sources into authority tiers
type AuthorityConfig struct {
	PrimaryDomains   []string          `json:"primary_domains" yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `json:"secondary_domains" yaml:"secondary_domains" mapstructure:"secondary_domains"`
	PathPatterns     []PathPattern     `json:"path_patterns" yaml:"path_patterns" mapstructure:"path_patterns"`
	DomainMap        map[string]string `json:"domain_map,omitempty" yaml:"domain_map,omitempty" mapstructure:"domain_map"`
}

// PathPattern maps a source path regex onto a tier
type PathPattern struct {
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Tier    string `json:"tier" yaml:"tier" mapstructure:"tier"`
}

// MemoryConfig controls memory recall during grounding
type MemoryConfig struct {
	Dimensions   []MemoryDimension `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
	MinRelevance float64           `json:"min_relevance" yaml:"min_relevance" mapstructure:"min_relevance"`
	MaxResults   int               `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
	FetchLimit   int               `json:"fetch_limit" yaml:"fetch_limit" mapstructure:"fetch_limit"`
	TTL          time.Duration     `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// StoreConfig locates the durable run-record store
type StoreConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// CacheConfig controls resolver result caching
type CacheConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `json:"dir,omitempty" yaml:"dir,omitempty" mapstructure:"dir"`
	DiskTTL time.Duration `json:"disk_ttl" yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ToolsConfig configures the built-in tools
type ToolsConfig struct {
	UserAgent         string        `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes      int64         `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RespectRobots     bool          `json:"respect_robots" yaml:"respect_robots" mapstructure:"respect_robots"`
}

// PolicyConfig lists command deny rules
type PolicyConfig struct {
	RulesFile string       `json:"rules_file,omitempty" yaml:"rules_file,omitempty" mapstructure:"rules_file"`
	Rules     []PolicyRule `json:"rules" yaml:"rules" mapstructure:"rules"`
}

// PolicyRule denies commands whose text matches Pattern. An empty PolicyKey
// applies the rule to every policy check.
type PolicyRule struct {
	ID        string `json:"id" yaml:"id" mapstructure:"id"`
	PolicyKey string `json:"policy_key,omitempty" yaml:"policy_key,omitempty" mapstructure:"policy_key"`
	Pattern   string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Reason    string `json:"reason" yaml:"reason" mapstructure:"reason"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // text, json
}

// ConcurrencyConfig bounds fan-out
type ConcurrencyConfig struct {
	ClaimWorkers int `json:"claim_workers" yaml:"claim_workers" mapstructure:"claim_workers"`
	BatchWorkers int `json:"batch_workers" yaml:"batch_workers" mapstructure:"batch_workers"`
}

// DefaultGroundingRequirements is the documented default policy callers may
// opt into explicitly; the gate itself never applies it
func DefaultGroundingRequirements() GroundingRequirements {
	return GroundingRequirements{
		CanonMode:           CanonStrict,
		RequireCitations:    true,
		MinConfidence:       0.6,
		AllowUnknown:        true,
		MaxUngroundedClaims: 1,
	}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "", // Disabled by default; planner falls back to rules
			Timeout:           30,
			MaxTokens:         1000,
			Temperature:       0.2,
			RequestsPerSecond: 2,
		},
		Grounding: DefaultGroundingRequirements(),
		Planner: PlannerConfig{
			StrictValidation: true,
			AuditQueueSize:   64,
		},
		Canon: CanonConfig{
			Authority: AuthorityConfig{
				PrimaryDomains:   []string{"canon"},
				SecondaryDomains: []string{"reference"},
			},
		},
		Memory: MemoryConfig{
			Dimensions:   AllMemoryDimensions(),
			MinRelevance: 0.3,
			MaxResults:   3,
			FetchLimit:   50,
			TTL:          7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "cogito.db",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
			DiskTTL: 24 * time.Hour,
		},
		Tools: ToolsConfig{
			UserAgent:         "Cogito/0.1 (+https://github.com/ppiankov/cogito)",
			Timeout:           15 * time.Second,
			MaxBodyBytes:      2_000_000,
			RequestsPerSecond: 1,
			RespectRobots:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Concurrency: ConcurrencyConfig{
			ClaimWorkers: 4,
			BatchWorkers: 4,
		},
	}
}
