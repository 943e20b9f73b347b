package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	want := "mqttlog " + version + " (commit " + commit + ", built " + date + ")\n"
	if out != want {
		t.Errorf("version output = %q, want %q", out, want)
	}
}

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name         string
		flag         string
		env          string
		wantPath     string
		wantExplicit bool
	}{
		{"default", "", "", defaultConfigPath, false},
		{"env", "", "/etc/mqttlog/env.yaml", "/etc/mqttlog/env.yaml", true},
		{"flag wins over env", "/tmp/flag.yaml", "/etc/mqttlog/env.yaml", "/tmp/flag.yaml", true},
		{"flag only", "/tmp/flag.yaml", "", "/tmp/flag.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(configEnv, tt.env)
			path, explicit := getConfigPath(tt.flag)
			if path != tt.wantPath || explicit != tt.wantExplicit {
				t.Errorf("getConfigPath(%q) = (%q, %v), want (%q, %v)",
					tt.flag, path, explicit, tt.wantPath, tt.wantExplicit)
			}
		})
	}
}

func TestLoadConfig_MissingDefaultUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if len(cfg.Subscriptions) != 1 || cfg.Subscriptions[0].Filter != "rye/test" {
		t.Errorf("Subscriptions = %+v, want the rye/test default", cfg.Subscriptions)
	}
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	t.Setenv(configEnv, "")

	err := run(context.Background(), "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("run() should fail when a named config file is missing")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run() error = %v, want os.ErrNotExist in chain", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
subscriptions:
  - filter: "rye/test"
    qos: 5
logging:
  level: error
`)
	t.Setenv(configEnv, path)

	err := run(context.Background(), "")
	if err == nil {
		t.Fatal("run() should fail validation for qos 5")
	}
	if !strings.Contains(err.Error(), "qos must be 0, 1, or 2") {
		t.Errorf("run() error = %v", err)
	}
}

func TestRun_UnwritableSinkPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	// Port 1 is never reached: the log file is opened before connecting.
	path := writeConfig(t, `
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
sink:
  path: "`+filepath.Join(blocker, "messages.txt")+`"
  create_on_start: true
logging:
  level: error
`)
	t.Setenv("MQTTLOG_SINK_PATH", "")

	err := run(context.Background(), path)
	if err == nil {
		t.Fatal("run() should fail when the log file cannot be created")
	}
}

func TestPublishCommand_Validation(t *testing.T) {
	t.Setenv(configEnv, "")
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name    string
		args    []string
		wantErr string
		is      error
	}{
		{"missing topic", []string{"publish", "hello"}, `required flag(s) "topic" not set`, nil},
		{"qos out of range", []string{"publish", "-t", "rye/test", "-q", "3", "hello"}, "--qos must be 0, 1, or 2", nil},
		{"wildcard topic", []string{"publish", "-t", "rye/#", "hello"}, "", mqtt.ErrInvalidTopic},
		{"empty topic", []string{"publish", "-t", "", "hello"}, "", mqtt.ErrInvalidTopic},
		{"missing config", []string{"publish", "-c", missing, "-t", "rye/test", "hello"}, "loading config", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v in chain", err, tt.is)
			}
		})
	}
}

func TestReadPayload(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"args joined", []string{"hello", "world"}, "ignored", "hello world"},
		{"single arg", []string{"a"}, "", "a"},
		{"stdin", nil, "from stdin\n", "from stdin\n"},
		{"empty", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.args, strings.NewReader(tt.stdin))
			if err != nil {
				t.Fatalf("readPayload() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("readPayload() = %q, want %q", got, tt.want)
			}
		})
	}
}
