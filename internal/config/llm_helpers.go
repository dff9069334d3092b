package config

import (
	"fmt"

	"botfleet/pkg/llm"
)

// MustLoadLLM locates etc/llm.yaml with the same upward search the main
// config file uses, and panics when it cannot be loaded. A shortcut for
// tools and tests that need the LLM client without hydrating the full app
// config.
func MustLoadLLM() *llm.Config {
	path, ok := resolveConfigPath("etc/llm.yaml")
	if !ok {
		panic(fmt.Errorf("config: etc/llm.yaml not found from working directory or executable path"))
	}
	cfg, err := llm.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("config: load llm config %s: %w", path, err))
	}
	return cfg
}
