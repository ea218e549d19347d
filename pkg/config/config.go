// Package config loads EasyGithub settings.
//
// Settings are layered: built-in defaults, then an optional TOML or YAML
// file, then a .env file, then environment variables. The result is checked
// with go-playground/validator before use.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/llm"
	"github.com/easygithub/easygithub/pkg/storage"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

const appName = "easygithub"

// Config is the complete application configuration.
type Config struct {
	LLM       llm.Config      `toml:"llm" yaml:"llm" json:"llm"`
	GitHub    GitHubConfig    `toml:"github" yaml:"github" json:"github"`
	Cache     cache.Config    `toml:"cache" yaml:"cache" json:"cache"`
	Storage   storage.Config  `toml:"storage" yaml:"storage" json:"storage"`
	Artifacts artifact.Config `toml:"artifacts" yaml:"artifacts" json:"artifacts"`
	Server    ServerConfig    `toml:"server" yaml:"server" json:"server"`
	Limits    LimitsConfig    `toml:"limits" yaml:"limits" json:"limits"`

	// Source is the config file that was read, empty when none was found.
	Source string `toml:"-" yaml:"-" json:"-"`
}

// GitHubConfig holds GitHub credentials. PAT wins over the App fields.
type GitHubConfig struct {
	PAT            string        `toml:"pat" yaml:"pat" json:"-"`
	AppClientID    string        `toml:"app_client_id" yaml:"app_client_id" json:"-"`
	PrivateKey     string        `toml:"private_key" yaml:"private_key" json:"-"`
	InstallationID string        `toml:"installation_id" yaml:"installation_id" json:"-"`
	OAuthClientID  string        `toml:"oauth_client_id" yaml:"oauth_client_id" json:"oauth_client_id,omitempty"`
	APIURL         string        `toml:"api_url" yaml:"api_url" json:"api_url,omitempty" validate:"omitempty,url"`
	CacheTTL       time.Duration `toml:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl" validate:"gte=0"`
}

// Credentials converts the settings into authenticator input.
func (g GitHubConfig) Credentials() github.Credentials {
	return github.Credentials{
		PAT:               g.PAT,
		AppClientID:       g.AppClientID,
		AppPrivateKey:     g.PrivateKey,
		AppInstallationID: g.InstallationID,
	}
}

// ServerConfig configures `easygithub serve`.
type ServerConfig struct {
	Addr           string        `toml:"addr" yaml:"addr" json:"addr" validate:"required"`
	BaseURL        string        `toml:"base_url" yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	CORSOrigins    []string      `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout" json:"request_timeout" validate:"gte=0"`
	ShutdownGrace  time.Duration `toml:"shutdown_grace" yaml:"shutdown_grace" json:"shutdown_grace" validate:"gte=0"`
}

// LimitsConfig bounds the repository context forwarded to the model.
type LimitsConfig struct {
	MaxTreeLines   int `toml:"max_tree_lines" yaml:"max_tree_lines" json:"max_tree_lines" validate:"gte=0"`
	MaxReadmeChars int `toml:"max_readme_chars" yaml:"max_readme_chars" json:"max_readme_chars" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cacheDir, _ := CacheDir()
	dataDir, _ := DataDir()
	return &Config{
		LLM: llm.Config{
			Provider:    llm.ProviderDeepseek,
			Temperature: 0.2,
			RPS:         1,
			Burst:       2,
			MaxRetries:  llm.DefaultMaxRetries,
		},
		GitHub: GitHubConfig{
			CacheTTL: cache.TTLHTTP,
		},
		Cache: cache.Config{
			Backend: cache.BackendFile,
			Dir:     cacheDir,
			Size:    1024,
		},
		Storage: storage.Config{
			Backend: storage.BackendSQLite,
			Path:    filepath.Join(dataDir, "diagrams.db"),
		},
		Artifacts: artifact.Config{
			Backend: artifact.BackendNone,
			Dir:     filepath.Join(dataDir, "artifacts"),
		},
		Server: ServerConfig{
			Addr:           ":8080",
			CORSOrigins:    []string{"*"},
			RequestTimeout: 5 * time.Minute,
			ShutdownGrace:  10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxTreeLines:   diagram.DefaultMaxTreeLines,
			MaxReadmeChars: diagram.DefaultMaxReadmeChars,
		},
	}
}

// CacheDir returns $XDG_CACHE_HOME/easygithub or ~/.cache/easygithub.
func CacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// DataDir returns $XDG_DATA_HOME/easygithub or ~/.local/share/easygithub.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigDir returns $XDG_CONFIG_HOME/easygithub or ~/.config/easygithub.
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

func xdgDir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}
