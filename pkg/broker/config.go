package broker

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// CredentialConfig is the decrypted, broker-agnostic shape of a Credential
// row (pkg/crypto handles the encryption at rest). Kind selects which
// registered ProviderBuilder constructs the session.
type CredentialConfig struct {
	Kind       string            `yaml:"kind"`
	APIKey     string            `yaml:"api_key"`
	Identifier string            `yaml:"identifier"`
	Password   string            `yaml:"password"`
	SecretKey  string            `yaml:"secret_key"`
	APISecret  string            `yaml:"api_secret"`
	Passphrase string            `yaml:"passphrase"`
	Custom     map[string]string `yaml:"custom"`
	Testnet    bool              `yaml:"testnet"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// ProviderBuilder constructs a Provider for one credential.
type ProviderBuilder func(credentialID string, cfg *CredentialConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider associates a builder with a broker kind
// (capital, binance, coinbase, custom). Safe for concurrent use; builders
// typically register themselves from an init() in their own package.
func RegisterProvider(kind string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[normaliseKind(kind)] = builder
}

func lookupProviderBuilder(kind string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	b, ok := providerRegistry[normaliseKind(kind)]
	return b, ok
}

func normaliseKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// RequiredFields lists the mandatory credential fields per broker kind. The
// CRUD surface in internal/logic validates against its own table instead.
func RequiredFields(kind string) ([]string, error) {
	switch normaliseKind(kind) {
	case "capital", "capital.com":
		return []string{"api_key", "identifier", "password"}, nil
	case "binance":
		return []string{"api_key", "secret_key"}, nil
	case "coinbase":
		return []string{"api_key", "api_secret", "passphrase"}, nil
	case "custom":
		return []string{"at least one key"}, nil
	default:
		return nil, fmt.Errorf("broker: unknown kind %q: %w", kind, errUnknownKind)
	}
}

// Validate checks a CredentialConfig has the fields its kind requires.
// "custom" requires at least one of APIKey/SecretKey/Custom to be set.
func (c *CredentialConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("broker: nil credential config")
	}
	c.expandEnv()
	if err := c.parseDurations(); err != nil {
		return err
	}
	switch normaliseKind(c.Kind) {
	case "capital", "capital.com":
		if c.APIKey == "" || c.Identifier == "" || c.Password == "" {
			return fmt.Errorf("broker: capital credential requires api_key, identifier, password")
		}
	case "binance":
		if c.APIKey == "" || c.SecretKey == "" {
			return fmt.Errorf("broker: binance credential requires api_key, secret_key")
		}
	case "coinbase":
		if c.APIKey == "" || c.APISecret == "" || c.Passphrase == "" {
			return fmt.Errorf("broker: coinbase credential requires api_key, api_secret, passphrase")
		}
	case "custom":
		if c.APIKey == "" && c.SecretKey == "" && len(c.Custom) == 0 {
			return fmt.Errorf("broker: custom credential requires at least one key")
		}
	default:
		return fmt.Errorf("broker: unknown kind %q: %w", c.Kind, errUnknownKind)
	}
	return nil
}

func (c *CredentialConfig) expandEnv() {
	c.APIKey = strings.TrimSpace(os.ExpandEnv(c.APIKey))
	c.Identifier = strings.TrimSpace(os.ExpandEnv(c.Identifier))
	c.Password = strings.TrimSpace(os.ExpandEnv(c.Password))
	c.SecretKey = strings.TrimSpace(os.ExpandEnv(c.SecretKey))
	c.APISecret = strings.TrimSpace(os.ExpandEnv(c.APISecret))
	c.Passphrase = strings.TrimSpace(os.ExpandEnv(c.Passphrase))
	c.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.TimeoutRaw))
}

func (c *CredentialConfig) parseDurations() error {
	if c.TimeoutRaw == "" {
		c.Timeout = 60 * time.Second
		return nil
	}
	d, err := time.ParseDuration(c.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("broker: invalid timeout %q: %w", c.TimeoutRaw, err)
	}
	c.Timeout = d
	return nil
}

// BuildProvider constructs the Provider registered for cfg.Kind. Unknown
// kinds are Fatal per the error taxonomy: a misconfigured broker kind can
// never be recovered from at runtime.
func BuildProvider(credentialID string, cfg *CredentialConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder, ok := lookupProviderBuilder(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("broker: unsupported kind %q: %w", cfg.Kind, errUnknownKind)
	}
	return builder(credentialID, cfg)
}

var errUnknownKind = fmt.Errorf("unknown broker kind")
