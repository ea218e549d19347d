package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/storage"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

var fileNames = []string{"easygithub.toml", "easygithub.yaml", "easygithub.yml"}

// SearchPaths lists the locations Load checks when no path is given, in
// order.
func SearchPaths() []string {
	paths := append([]string(nil), fileNames...)
	if dir, err := ConfigDir(); err == nil {
		for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

// Load builds the effective configuration. An explicit path must exist;
// without one the first file found in [SearchPaths] is used, and finding none
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
		cfg.Source = path
	}

	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile() string {
	for _, p := range SearchPaths() {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := c.Decode(data, filepath.Ext(path)); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Decode merges data into c. ext selects the format: ".toml", ".yaml" or
// ".yml". Keys missing from data keep their current values.
func (c *Config) Decode(data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".toml":
		_, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c)
		return err
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}
}

// ApplyEnv overrides settings from environment variables read through
// getenv. Unset and empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }
	set := func(dst *string, key string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}

	set(&c.LLM.Provider, "LLM_PROVIDER")
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	set(&c.LLM.Model, "BASE_MODEL_NAME")
	switch c.LLM.Provider {
	case "deepseek", "":
		set(&c.LLM.APIKey, "DEEPSEEK_API_KEY")
		set(&c.LLM.BaseURL, "DEEPSEEK_BASE_URL")
	case "openai":
		set(&c.LLM.APIKey, "OPENAI_API_KEY")
		set(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	case "anthropic":
		set(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		set(&c.LLM.APIKey, "GEMINI_API_KEY")
	}
	if v := get("LLM_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "LLM_RPS must be a number")
		}
		c.LLM.RPS = rps
	}
	if v := get("LLM_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "LLM_BURST must be an integer")
		}
		c.LLM.Burst = burst
	}

	set(&c.GitHub.PAT, "GITHUB_PAT")
	set(&c.GitHub.AppClientID, "GITHUB_CLIENT_ID")
	set(&c.GitHub.PrivateKey, "GITHUB_PRIVATE_KEY")
	set(&c.GitHub.InstallationID, "GITHUB_INSTALLATION_ID")
	set(&c.GitHub.OAuthClientID, "GITHUB_OAUTH_CLIENT_ID")

	set(&c.Cache.Backend, "EASYGITHUB_CACHE")
	set(&c.Cache.RedisURL, "REDIS_URL")

	set(&c.Storage.Backend, "EASYGITHUB_STORAGE")
	set(&c.Storage.DatabaseURL, "DATABASE_URL")
	set(&c.Storage.MongoURI, "MONGO_URI")

	set(&c.Artifacts.Endpoint, "S3_ENDPOINT")
	set(&c.Artifacts.AccessKey, "S3_ACCESS_KEY")
	set(&c.Artifacts.SecretKey, "S3_SECRET_KEY")
	set(&c.Artifacts.Bucket, "S3_BUCKET")
	if get("S3_ENDPOINT") != "" && (c.Artifacts.Backend == "" || c.Artifacts.Backend == artifact.BackendNone) {
		c.Artifacts.Backend = artifact.BackendS3
	}

	set(&c.Server.Addr, "EASYGITHUB_ADDR")
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and URL safety.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid configuration")
	}
	for name, u := range map[string]string{
		"llm.base_url":       c.LLM.BaseURL,
		"github.api_url":     c.GitHub.APIURL,
		"server.base_url":    c.Server.BaseURL,
		"artifacts.base_url": c.Artifacts.BaseURL,
	} {
		if u == "" {
			continue
		}
		if err := errors.ValidateURL(u); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "%s", name)
		}
	}
	if c.Storage.Backend == storage.BackendSQLite && c.Storage.Path == "" {
		return errors.New(errors.ErrCodeInvalidInput, "storage.path is required for sqlite")
	}
	return nil
}

const mask = "****"

// Masked returns a copy with secrets replaced, for display.
func (c *Config) Masked() *Config {
	m := *c
	m.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	for _, s := range []*string{
		&m.LLM.APIKey,
		&m.GitHub.PAT,
		&m.GitHub.PrivateKey,
		&m.Cache.RedisURL,
		&m.Storage.DatabaseURL,
		&m.Storage.MongoURI,
		&m.Artifacts.AccessKey,
		&m.Artifacts.SecretKey,
	} {
		if *s != "" {
			*s = mask
		}
	}
	return &m
}

// Encode writes c as TOML or YAML, chosen by ext.
func (c *Config) Encode(w io.Writer, ext string) error {
	switch strings.ToLower(ext) {
	case ".toml", "toml":
		return toml.NewEncoder(w).Encode(c)
	case ".yaml", ".yml", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}
