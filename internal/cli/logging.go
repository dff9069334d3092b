package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/internal/config"
	"botfleet/pkg/confkit"
)

// ConfigSummaryLines renders the loaded app config as human readable lines,
// one per concern, for startup logs.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	return []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", onOff(cfg.Postgres.DataSource != "")),
		fmt.Sprintf("Redis: %s", onOff(len(cfg.Cache) > 0)),
		fmt.Sprintf("Credential encryption: %s", onOff(strings.TrimSpace(cfg.CredentialsKey) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Chart engine: %s", fallback(cfg.Chart.EngineURL, "probe defaults")),
		fmt.Sprintf("Chart output dir: %s", cfg.Chart.OutputDir),
		fmt.Sprintf("Monitor tick: %s", cfg.Orchestrator.MonitorTick),
		fmt.Sprintf("Decision prompt: %s", fallback(cfg.DecisionPromptFile, "built-in")),
		sectionLine("LLM config", cfg.LLM),
	}
}

// LogConfigSummary emits the configuration summary through logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func onOff(configured bool) string {
	if configured {
		return "configured"
	}
	return "not configured"
}

func fallback(v, alt string) string {
	if strings.TrimSpace(v) == "" {
		return alt
	}
	return v
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
