package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Ingestion  Ingestion  `yaml:"ingestion"`
	Evaluation Evaluation `yaml:"evaluation"`
	Categories []Category `yaml:"categories"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Ingestion struct {
	Feeds       []Feed `yaml:"feeds"`
	MaxPerFeed  int    `yaml:"max_per_feed"`
	ExpandLinks bool   `yaml:"expand_links"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Evaluation struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	OllamaURL        string `yaml:"ollama_url"`
	OpenAIModel      string `yaml:"openai_model"`
	AnthropicModel   string `yaml:"anthropic_model"`
	APIKeyEnv        string `yaml:"api_key_env"`
	ValueThreshold   int    `yaml:"value_threshold"`
	BatchSize        int    `yaml:"batch_size"`
	MinContentLength int    `yaml:"min_content_length"`
	MaxTokens        int    `yaml:"max_tokens"`
}

// Category describes one digest section of the topic taxonomy.
type Category struct {
	Name          string   `yaml:"name"`
	Emoji         string   `yaml:"emoji"`
	Description   string   `yaml:"description"`
	SubCategories []string `yaml:"sub_categories"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for streamdigest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "streamdigest")
}

// DataDir returns the XDG data directory for streamdigest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "streamdigest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/streamdigest/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'streamdigest init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Ingestion: Ingestion{
			MaxPerFeed: 50,
		},
		Evaluation: Evaluation{
			Provider:         "ollama",
			Model:            "qwen2.5:7b",
			OllamaURL:        "http://localhost:11434",
			OpenAIModel:      "gpt-4o-mini",
			AnthropicModel:   "claude-3-5-haiku-latest",
			APIKeyEnv:        "OPENAI_API_KEY",
			ValueThreshold:   5,
			BatchSize:        10,
			MinContentLength: 20,
			MaxTokens:        2048,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	return cfg, nil
}

// DefaultCategories returns the built-in digest taxonomy.
func DefaultCategories() []Category {
	return []Category{
		{Name: "News", Emoji: "🔥", Description: "Breaking announcements, releases, and industry events",
			SubCategories: []string{"Model Release", "Product Launch", "Industry Event"}},
		{Name: "Deep Dive", Emoji: "💡", Description: "Original analysis and informed commentary",
			SubCategories: []string{"Analysis", "Opinion", "Retrospective"}},
		{Name: "Technique", Emoji: "🛠", Description: "Practical tips, workflows, and how-tos",
			SubCategories: []string{"Prompting", "Tooling", "Workflow"}},
		{Name: "Research", Emoji: "📚", Description: "Papers, benchmarks, and academic results",
			SubCategories: []string{"Paper", "Benchmark", "Dataset"}},
		{Name: "Product", Emoji: "🎯", Description: "Hands-on reports about products and applications",
			SubCategories: []string{"Review", "Demo", "Use Case"}},
		{Name: "Business", Emoji: "💼", Description: "Market moves, strategy, and commercial insight",
			SubCategories: []string{"Strategy", "Market", "Funding"}},
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
