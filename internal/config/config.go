package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/rest"

	"botfleet/pkg/confkit"
	llmpkg "botfleet/pkg/llm"
)

type CacheTTL struct {
	Short  int `json:",default=10"` // seconds
	Medium int `json:",default=60"`
	Long   int `json:",default=300"`
}

// PostgresConf mirrors goctl style database settings while allowing pool tuning.
type PostgresConf struct {
	DataSource  string        `json:",optional,env=DATABASE_URL"`
	MaxOpen     int           `json:",default=10"`
	MaxIdle     int           `json:",default=5"`
	MaxLifetime time.Duration `json:",default=5m"`
}

// ChartConf locates the out-of-process chart renderer and the local fallback
// directory for chart images when the object store is unreachable.
type ChartConf struct {
	EngineURL string   `json:",optional,env=CHART_ENGINE_URL"`
	Endpoints []string `json:",optional"` // probed in order when EngineURL is unset
	OutputDir string   `json:",default=./charts,env=CHART_OUTPUT_DIR"`
	StoreURL  string   `json:",optional"` // object-store upload endpoint
}

// OrchestratorConf tunes the coordinator/monitor/scheduler loops.
type OrchestratorConf struct {
	MonitorTick          time.Duration `json:",default=30s"`
	MaxTimeInPosition    time.Duration `json:",default=24h"`
	InterBotGap          time.Duration `json:",default=30s"`
	MinCallGap           time.Duration `json:",default=500ms"`
	MaxConcurrentPerCred int           `json:",default=1"`
	ChartCandles         int           `json:",default=120"`
}

type Config struct {
	rest.RestConf
	// Env indicates the running environment: test | dev | prod
	Env      string          `json:",default=test"`
	Postgres PostgresConf
	Cache    cache.CacheConf `json:",optional"`
	TTL      CacheTTL

	Chart        ChartConf
	Orchestrator OrchestratorConf

	// CredentialsKey feeds pkg/crypto's AES-256-CBC box. Required in prod;
	// its absence elsewhere degrades credential storage to plaintext with a
	// logged warning.
	CredentialsKey string `json:",optional,env=CREDENTIALS_ENCRYPTION_KEY"`

	// DecisionModel overrides the LLM model used by the trading-decision
	// chain; empty uses the llm config's default.
	DecisionModel string `json:",optional"`

	// DecisionPromptFile points at an operator-maintained prompt template
	// (text/template) rendered instead of the built-in decision prompt.
	DecisionPromptFile string `json:",optional"`

	LLM confkit.Section[llmpkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

const defaultConfigRelativePath = "etc/botfleet.yaml"

var (
	configFileFlag = flag.String("f", defaultConfigRelativePath, "the config file")
)

func init() {
	confkit.LoadDotenvOnce()
}

// ConfigFile resolves the -f flag (or the default etc/botfleet.yaml)
// against the working directory and the executable's directory, walking
// upwards so the binary finds its config from any subdirectory of the
// repo or install tree.
func ConfigFile() string {
	candidate := defaultConfigRelativePath
	if configFileFlag != nil {
		if trimmed := strings.TrimSpace(*configFileFlag); trimmed != "" {
			candidate = trimmed
		}
	}
	if resolved, ok := resolveConfigPath(candidate); ok {
		return resolved
	}
	return candidate
}

// OverrideConfigFile swaps the -f flag value and returns a restore func,
// for tests that load a scratch config.
func OverrideConfigFile(path string) (restore func()) {
	prev := ConfigFile()
	if configFileFlag != nil {
		*configFileFlag = path
	}
	return func() {
		if configFileFlag != nil {
			*configFileFlag = prev
		}
	}
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func resolveConfigPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		return path, fileExists(path)
	}

	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}

	tried := make(map[string]bool, len(roots))
	for _, root := range roots {
		root = filepath.Clean(root)
		if root == "" || tried[root] {
			continue
		}
		tried[root] = true
		for dir := root; ; dir = filepath.Dir(dir) {
			if candidate := filepath.Join(dir, path); fileExists(candidate) {
				return candidate, true
			}
			if filepath.Dir(dir) == dir {
				break
			}
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func MustLoad() *Config {
	path := ConfigFile()
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if c.Env == "prod" && strings.TrimSpace(c.CredentialsKey) == "" {
		return errors.New("config: credentialsKey (CREDENTIALS_ENCRYPTION_KEY) is required in prod")
	}
	return c.validateTTL()
}

func (c *Config) validateTTL() error {
	if c.TTL.Short <= 0 {
		return errors.New("config: ttl.short must be positive")
	}
	if c.TTL.Medium <= 0 {
		return errors.New("config: ttl.medium must be positive")
	}
	if c.TTL.Long <= 0 {
		return errors.New("config: ttl.long must be positive")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if err := c.LLM.Hydrate(c.baseDir, llmpkg.LoadConfig); err != nil {
		return fmt.Errorf("load llm config: %w", err)
	}
	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
