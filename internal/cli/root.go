package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var version = "v0.1.0"

var (
	cfgFile    string
	verbose    bool
	eventsPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cogito",
	Short: "Cogito - grounded cognition core for conversational agents",
	Long: `Cogito runs one conversational turn at a time through a cognition pipeline:
intent classification, planning, execution, grounding and reflection.

Every factual claim in a draft response is checked against curated canon
first and user memory second. Drafts that cannot be grounded are annotated,
turned into a confirmation question, or withheld.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cogito %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.cogito/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&eventsPath, "events", "", "append every pipeline event to this file as JSON lines")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the .env file, the config file and COGITO_* variables
func initConfig() {
	_ = godotenv.Load(".env")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".cogito"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// COGITO_LLM_PROVIDER overrides llm.provider
	viper.SetEnvPrefix("COGITO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := registerDefaults(viper.GetViper(), cfg); err != nil {
		return nil, err
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyProviderEnv(&cfg.LLM)
	return cfg, nil
}

// registerDefaults makes every config key known to viper so that
// AutomaticEnv can override keys absent from the config file
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	setDefaults(v, "", tree)
	// Not serialized, still overridable
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("canon.paths", cfg.Canon.Paths)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("policy.rules_file", cfg.Policy.RulesFile)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			setDefaults(v, full, nested)
			continue
		}
		v.SetDefault(full, value)
	}
}

// applyProviderEnv fills credentials from the providers' conventional
// variables when the config does not carry them
func applyProviderEnv(c *model.LLMConfig) {
	if c.APIKey == "" {
		switch strings.ToLower(c.Provider) {
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.BaseURL == "" && strings.EqualFold(c.Provider, "ollama") {
		c.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
}

// newLogger builds the slog handler selected by the logging config
func newLogger(w io.Writer, cfg model.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
