package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads a .env file exactly once per process. The search
// starts at the working directory and walks upwards until a repository
// marker (go.mod or .git) is found, so tests running from a package
// directory still pick up the repo-root .env. Existing environment
// variables win unless DOTENV_OVERLOAD=1; NO_DOTENV=1 disables the whole
// mechanism; ENV_FILE pins an explicit file.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = load(envFile)
		return
	}

	dir, err := os.Getwd()
	if err != nil {
		_ = load()
		return
	}
	for depth := 0; depth < 8; depth++ {
		_ = load(filepath.Join(dir, ".env"))
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
