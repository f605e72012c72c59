package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		Root       string   `yaml:"root"`
		IgnoreDirs []string `yaml:"ignore_dirs"`
	} `yaml:"project"`
	Analysis struct {
		Primitives   []string `yaml:"primitives"`    // treated as builtin type names
		IgnoreMacros []string `yaml:"ignore_macros"` // dropped during extraction
		Workers      int      `yaml:"workers"`       // 0 means one per CPU
	} `yaml:"analysis"`
	Output struct {
		Database string `yaml:"database"`
	} `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Project.Root = "."
	cfg.Project.IgnoreDirs = []string{".git", "build"}
	cfg.Output.Database = "portmap.db"
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config over the defaults
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// 3. Override with Environment Variables if present
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if root := os.Getenv("PORTMAP_ROOT"); root != "" {
		cfg.Project.Root = root
	}
	if db := os.Getenv("PORTMAP_DB"); db != "" {
		cfg.Output.Database = db
	}
	if workers := os.Getenv("PORTMAP_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Analysis.Workers = n
		}
	}
}
