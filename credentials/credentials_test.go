package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeCreds(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) < 2 {
		t.Errorf("expected at least 2 standard paths, got %d", len(paths))
	}
	if paths[0] != "credentials.toml" {
		t.Errorf("first path should be credentials.toml, got %s", paths[0])
	}
}

func TestLoadFile(t *testing.T) {
	path := writeCreds(t, `
[anthropic]
api_key = "sk-ant-test123"

[openai]
api_key = "sk-openai-test456"

[nats]
token = "s3cr3t"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := creds.GetAPIKey("anthropic"); got != "sk-ant-test123" {
		t.Errorf("anthropic key = %q, want sk-ant-test123", got)
	}
	if got := creds.GetAPIKey("openai"); got != "sk-openai-test456" {
		t.Errorf("openai key = %q, want sk-openai-test456", got)
	}
	if got := creds.GetToken("nats"); got != "s3cr3t" {
		t.Errorf("nats token = %q, want s3cr3t", got)
	}
}

func TestLoadFileRejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission check is unix-only")
	}
	path := writeCreds(t, `
[anthropic]
api_key = "sk-ant-test123"
`, 0644)

	if _, err := LoadFile(path); !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("expected ErrInsecurePermissions, got %v", err)
	}
}

func TestGetAPIKeySectionNameIsCaseInsensitive(t *testing.T) {
	path := writeCreds(t, `
[Anthropic]
api_key = "sk-ant-test123"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := creds.GetAPIKey("anthropic"); got != "sk-ant-test123" {
		t.Errorf("anthropic key = %q, want sk-ant-test123", got)
	}
}

func TestGetAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	var creds *Credentials // nil: no credentials file found
	if got := creds.GetAPIKey("anthropic"); got != "sk-from-env" {
		t.Errorf("expected env fallback, got %q", got)
	}
}

func TestGetTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("NATS_TOKEN", "env-token")

	var creds *Credentials
	if got := creds.GetToken("nats"); got != "env-token" {
		t.Errorf("expected env fallback, got %q", got)
	}
}
