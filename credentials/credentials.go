// Package credentials loads API keys and tokens from standard locations.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is
// readable by group or others.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds secrets loaded from credentials.toml. Sections are
// keyed by provider name so new providers need no code change.
type Credentials struct {
	sections map[string]*Section
}

// Section holds one provider's secrets.
type Section struct {
	APIKey string `toml:"api_key"`
	Token  string `toml:"token"`
}

// StandardPaths returns the credential file locations in priority order.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "tandem", "credentials.toml"),
			filepath.Join(home, ".tandem", "credentials.toml"))
	}
	return paths
}

// Load loads credentials from the first available standard location.
// A missing file is not an error; every lookup then falls through to
// environment variables.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions unless the file is mode 0400.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var raw map[string]*Section
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	creds := &Credentials{sections: make(map[string]*Section)}
	for name, section := range raw {
		if section == nil {
			continue
		}
		creds.sections[strings.ToLower(name)] = section
	}
	return creds, nil
}

// GetAPIKey returns the API key for a provider.
// Priority: provider section > environment variable.
func (c *Credentials) GetAPIKey(provider string) string {
	if c != nil {
		if s, ok := c.sections[strings.ToLower(provider)]; ok && s.APIKey != "" {
			return s.APIKey
		}
	}
	return os.Getenv(envVarForProvider(provider))
}

// GetToken returns the token for a named service (e.g. "nats").
func (c *Credentials) GetToken(service string) string {
	if c != nil {
		if s, ok := c.sections[strings.ToLower(service)]; ok && s.Token != "" {
			return s.Token
		}
	}
	return os.Getenv(strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_TOKEN")
}

// envVarForProvider returns the environment variable name for a provider.
func envVarForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}
