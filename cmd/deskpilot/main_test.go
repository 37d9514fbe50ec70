package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/deskpilot/internal/automation"
	"github.com/nerrad567/deskpilot/internal/infrastructure/config"
	"github.com/nerrad567/deskpilot/internal/infrastructure/database"
	"github.com/nerrad567/deskpilot/internal/infrastructure/logging"
	"github.com/nerrad567/deskpilot/internal/resultcache"
	"github.com/nerrad567/deskpilot/internal/scripts"
)

// writeConfig writes a minimal config with MQTT and InfluxDB disabled and
// returns its path along with the script directory.
func writeConfig(t *testing.T, dbPath string, port int) (string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	scriptDir := filepath.Join(tmpDir, "actions")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatalf("creating script dir: %v", err)
	}

	configContent := `
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: warn
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: ` + strconv.Itoa(port) + `

engine:
  data_dir: "` + filepath.Join(tmpDir, "data") + `"
  script_dirs:
    - "` + scriptDir + `"

secrets:
  constants:
    tenant: acme
`
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, scriptDir
}

// newTestEngine returns an engine over the scripts in dir with no browser
// player or function runtime.
func newTestEngine(dir string) *automation.Engine {
	return automation.NewEngine(automation.Config{DataDir: dir}, automation.Deps{
		Store: scripts.NewStore(dir),
		Cache: resultcache.New(nil),
	})
}

// TestParseFlags covers the command line surface.
func TestParseFlags(t *testing.T) {
	t.Setenv("DESKPILOT_CONFIG", "")

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			want: options{configPath: defaultConfigPath},
		},
		{
			name: "short config",
			args: []string{"-c", "/etc/deskpilot.yaml"},
			want: options{configPath: "/etc/deskpilot.yaml"},
		},
		{
			name: "play once",
			args: []string{"--play", "morning"},
			want: options{configPath: defaultConfigPath, play: "morning"},
		},
		{
			name: "migrate down",
			args: []string{"--migrate-down"},
			want: options{configPath: defaultConfigPath, migrateDown: true},
		},
		{
			name: "version",
			args: []string{"-v"},
			want: options{configPath: defaultConfigPath, showVersion: true},
		},
		{
			name:    "play and play-steps together",
			args:    []string{"--play", "a", "--play-steps", "b"},
			wantErr: true,
		},
		{
			name:    "stray argument",
			args:    []string{"morning"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseFlags(%v) should fail", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags(%v): %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseFlags(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

// TestParseFlags_Help verifies --help surfaces pflag.ErrHelp.
func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags([]string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("parseFlags(--help) error = %v, want pflag.ErrHelp", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("DESKPILOT_CONFIG", "")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("DESKPILOT_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	configPath, _ := writeConfig(t, "", 18431)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: configPath}); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SuccessfulStartupAndShutdown starts every component with MQTT and
// InfluxDB disabled and stops on context timeout.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath, _ := writeConfig(t, dbPath, 18432)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: configPath}); err != nil {
		t.Fatalf("run() = %v", err)
	}

	// Config constants were persisted to the name table.
	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	values, err := db.ListNameValues(context.Background())
	if err != nil {
		t.Fatalf("ListNameValues() = %v", err)
	}
	found := false
	for _, v := range values {
		if v.Key == "tenant" && v.Value == "acme" {
			found = true
		}
	}
	if !found {
		t.Errorf("name table = %+v, want tenant=acme", values)
	}
}

// TestRun_PlayOnce plays an empty action script in one-shot mode.
func TestRun_PlayOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath, scriptDir := writeConfig(t, dbPath, 18433)

	script := `{
  // nothing to do
  "actions": []
}`
	if err := os.WriteFile(filepath.Join(scriptDir, "idle.json"), []byte(script), 0o600); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: configPath, play: "idle"}); err != nil {
		t.Errorf("run(--play idle) = %v", err)
	}

	err := run(ctx, options{configPath: configPath, play: "missing"})
	if err == nil {
		t.Fatal("run(--play missing) should fail")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("run(--play missing) error = %v, want script name", err)
	}
}

// TestRun_MigrateDown rolls back the schema and exits.
func TestRun_MigrateDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath, _ := writeConfig(t, dbPath, 18434)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First start migrates up and seeds, then rolls straight back.
	if err := run(ctx, options{configPath: configPath, play: "absent"}); err == nil {
		t.Fatal("run(--play absent) should fail")
	}
	if err := run(ctx, options{configPath: configPath, migrateDown: true}); err != nil {
		t.Fatalf("run(--migrate-down) = %v", err)
	}

	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	if _, err := db.ListNameValues(context.Background()); err == nil {
		t.Error("ListNameValues() should fail once the name table is dropped")
	}
}

// TestEngineTemplates verifies config templates carry over to the engine.
func TestEngineTemplates(t *testing.T) {
	if got := engineTemplates(nil); got != nil {
		t.Errorf("engineTemplates(nil) = %v, want nil", got)
	}

	in := map[string]config.HostTemplateConfig{
		"reports.example.com": {
			URL: &config.TemplateConfig{Format: "%s?tenant=%s", Refs: []string{"tenant"}},
			Headers: map[string]config.TemplateConfig{
				"Authorization": {Format: "Bearer %s", Refs: []string{"token"}},
			},
		},
		"plain.example.com": {},
	}

	got := engineTemplates(in)
	if len(got) != 2 {
		t.Fatalf("engineTemplates() has %d hosts, want 2", len(got))
	}

	rep := got["reports.example.com"]
	if rep.URL == nil || rep.URL.Format != "%s?tenant=%s" || rep.URL.Refs[0] != "tenant" {
		t.Errorf("url template = %+v", rep.URL)
	}
	if h := rep.Headers["Authorization"]; h.Format != "Bearer %s" || h.Refs[0] != "token" {
		t.Errorf("header template = %+v", h)
	}

	plain := got["plain.example.com"]
	if plain.URL != nil || plain.Headers != nil {
		t.Errorf("plain host = %+v, want empty", plain)
	}
}

// TestPlayOnce_Output verifies the success line.
func TestPlayOnce_Output(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "idle.json"), []byte(`{"actions": []}`), 0o600); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	engine := newTestEngine(dir)

	var buf bytes.Buffer
	if err := playOnce(context.Background(), engine, options{play: "idle"}, &buf); err != nil {
		t.Fatalf("playOnce() = %v", err)
	}
	if got := buf.String(); got != "actions idle: ok\n" {
		t.Errorf("playOnce() output = %q", got)
	}

	buf.Reset()
	if err := playOnce(context.Background(), engine, options{playSteps: "idle"}, &buf); err == nil {
		t.Error("playOnce(--play-steps) without a player should fail")
	}
	if buf.Len() != 0 {
		t.Errorf("failed playOnce() wrote %q", buf.String())
	}
}

// TestLoadNames merges config constants, the name table and the secrets file.
func TestLoadNames(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(database.Config{Path: filepath.Join(dir, "names.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	if err := db.UpsertNameValue(context.Background(), "stored", "yes"); err != nil {
		t.Fatalf("UpsertNameValue() = %v", err)
	}

	secrets := filepath.Join(dir, "secrets.env")
	if err := os.WriteFile(secrets, []byte("API_TOKEN=s3cret\n"), 0o600); err != nil {
		t.Fatalf("writing secrets: %v", err)
	}

	tests := []struct {
		name      string
		dotenv    string
		wantNames int
	}{
		{name: "with secrets file", dotenv: secrets, wantNames: 3},
		{name: "missing secrets file", dotenv: filepath.Join(dir, "absent.env"), wantNames: 2},
		{name: "no secrets file configured", dotenv: "", wantNames: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Secrets: config.SecretsConfig{
				DotenvPath: tt.dotenv,
				Constants:  map[string]string{"tenant": "acme"},
			}}
			resolver, err := loadNames(context.Background(), cfg, db, logging.Default())
			if err != nil {
				t.Fatalf("loadNames() = %v", err)
			}
			if got := resolver.Len(); got != tt.wantNames {
				t.Errorf("resolver.Len() = %d, want %d", got, tt.wantNames)
			}
		})
	}
}
