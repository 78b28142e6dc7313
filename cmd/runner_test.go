package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"spottransfer/internal/shared"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "test.db")

	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(out),
		Output: out,
	})
	return runner, out
}

func runCommand(t *testing.T, r *Runner, args ...string) error {
	t.Helper()

	app := &cli.Command{
		Name:     "spottransfer",
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"spottransfer"}, args...))
}

func TestNewRunner(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		if runner.config == nil || runner.logger == nil || runner.output == nil {
			t.Error("expected defaults for nil options")
		}
	})
}

func TestRunnerOutput(t *testing.T) {
	t.Run("writeJSON", func(t *testing.T) {
		runner, out := newTestRunner(t)

		if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := out.String(); got != "{\"key\":\"value\"}\n" {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("writeJSON pretty", func(t *testing.T) {
		runner, out := newTestRunner(t)

		if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "  \"key\": \"value\"") {
			t.Errorf("expected indented output, got %q", out.String())
		}
	})

	t.Run("writePlain", func(t *testing.T) {
		runner, out := newTestRunner(t)

		runner.writePlain("hello %s\n", "world")
		if out.String() != "hello world\n" {
			t.Errorf("unexpected output %q", out.String())
		}
	})
}

func TestSetupCommand(t *testing.T) {
	t.Run("creates config and database", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := runCommand(t, runner, "setup", "-c", configPath); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Errorf("expected config file to exist: %v", err)
		}
		if _, err := os.Stat(runner.config.Database.Path); err != nil {
			t.Errorf("expected database file to exist: %v", err)
		}
	})

	t.Run("refuses to overwrite an existing config", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("# existing"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := runCommand(t, runner, "setup", "-c", configPath); err == nil {
			t.Fatal("expected error for existing config file")
		}
	})
}

func TestHistoryCommand(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		runner, out := newTestRunner(t)
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := runCommand(t, runner, "setup", "-c", configPath); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		out.Reset()

		if err := runCommand(t, runner, "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "No transfers recorded") {
			t.Errorf("unexpected output %q", out.String())
		}
	})
}

func TestCacheClearCommand(t *testing.T) {
	runner, out := newTestRunner(t)

	if err := runCommand(t, runner, "cache", "clear"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Cache cleared") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestLoadToken(t *testing.T) {
	t.Run("valid token file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "oauth.json")
		content := `{"access_token": "tok", "refresh_token": "ref", "token_type": "Bearer"}`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		token, err := loadToken(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != "tok" || token.RefreshToken != "ref" {
			t.Errorf("unexpected token %+v", token)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadToken(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		os.WriteFile(path, []byte("not json"), 0600)

		if _, err := loadToken(path); err == nil {
			t.Fatal("expected error for malformed file")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		os.WriteFile(path, []byte("{}"), 0600)

		if _, err := loadToken(path); err == nil {
			t.Fatal("expected error for token without credentials")
		}
	})
}
