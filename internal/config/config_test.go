package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// TestConfig mirrors the shape of the CLI options struct.
type TestConfig struct {
	Config string `help:"Config file path"`

	StringField string        `toml:"test.string_field" env:"STRING_FIELD"`
	BoolField   bool          `toml:"test.bool_field" env:"BOOL_FIELD"`
	IntField    int           `toml:"test.int_field" env:"INT_FIELD"`
	SliceField  []string      `toml:"test.slice_field" env:"SLICE_FIELD"`
	Timeout     time.Duration `toml:"sidecar.timeout" env:"SIDECAR_TIMEOUT"`

	NestedString string `toml:"nested.value" env:"NESTED_VALUE"`
}

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeTOML(t, `
[test]
string_field = "hello world"
bool_field = true
int_field = 42
slice_field = ["item1", "item2", "item3"]

[sidecar]
timeout = "90s"

[nested]
value = "nested value"
`)

	config := &TestConfig{Config: path}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "hello world" {
		t.Errorf("Expected StringField to be 'hello world', got '%s'", config.StringField)
	}
	if !config.BoolField {
		t.Errorf("Expected BoolField to be true")
	}
	if config.IntField != 42 {
		t.Errorf("Expected IntField to be 42, got %d", config.IntField)
	}
	expectedSlice := []string{"item1", "item2", "item3"}
	if !reflect.DeepEqual(config.SliceField, expectedSlice) {
		t.Errorf("Expected SliceField to be %v, got %v", expectedSlice, config.SliceField)
	}
	if config.Timeout != 90*time.Second {
		t.Errorf("Expected Timeout to be 90s, got %v", config.Timeout)
	}
	if config.NestedString != "nested value" {
		t.Errorf("Expected NestedString to be 'nested value', got '%s'", config.NestedString)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("OCRNODE_STRING_FIELD", "env string")
	t.Setenv("OCRNODE_BOOL_FIELD", "true")
	t.Setenv("OCRNODE_INT_FIELD", "123")
	t.Setenv("OCRNODE_SLICE_FIELD", "env1, env2,env3")
	t.Setenv("OCRNODE_SIDECAR_TIMEOUT", "45")
	t.Setenv("OCRNODE_NESTED_VALUE", "env nested")

	config := &TestConfig{}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "env string" {
		t.Errorf("Expected StringField to be 'env string', got '%s'", config.StringField)
	}
	if !config.BoolField {
		t.Errorf("Expected BoolField to be true")
	}
	if config.IntField != 123 {
		t.Errorf("Expected IntField to be 123, got %d", config.IntField)
	}
	expectedSlice := []string{"env1", "env2", "env3"}
	if !reflect.DeepEqual(config.SliceField, expectedSlice) {
		t.Errorf("Expected SliceField to be %v, got %v", expectedSlice, config.SliceField)
	}
	if config.Timeout != 45*time.Second {
		t.Errorf("Expected Timeout to be 45s, got %v", config.Timeout)
	}
	if config.NestedString != "env nested" {
		t.Errorf("Expected NestedString to be 'env nested', got '%s'", config.NestedString)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeTOML(t, `
[test]
string_field = "from toml"
int_field = 100

[sidecar]
timeout = 30
`)
	t.Setenv("OCRNODE_STRING_FIELD", "from env")
	t.Setenv("OCRNODE_SIDECAR_TIMEOUT", "2m")

	cmd := &cobra.Command{Use: "test"}
	var intField int
	cmd.Flags().IntVar(&intField, "int-field", 0, "")
	if err := cmd.Flags().Set("int-field", "7"); err != nil {
		t.Fatal(err)
	}

	config := &TestConfig{Config: path, IntField: 7}
	if err := LoadConfig(config, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "from env" {
		t.Errorf("env should override file, got '%s'", config.StringField)
	}
	if config.IntField != 7 {
		t.Errorf("CLI flag should win over file, got %d", config.IntField)
	}
	if config.Timeout != 2*time.Minute {
		t.Errorf("env duration should override file, got %v", config.Timeout)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	config := &TestConfig{Config: filepath.Join(t.TempDir(), "absent.toml"), StringField: "default"}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("missing config file should not be an error: %v", err)
	}
	if config.StringField != "default" {
		t.Errorf("defaults should survive, got '%s'", config.StringField)
	}
}

func TestLoadConfigNumberIntoString(t *testing.T) {
	config := &TestConfig{Config: writeTOML(t, "[nested]\nvalue = 30\n")}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatal(err)
	}
	if config.NestedString != "30" {
		t.Errorf("NestedString = %q, want \"30\"", config.NestedString)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("invalid toml", func(t *testing.T) {
		config := &TestConfig{Config: writeTOML(t, "[test\nbroken")}
		if err := LoadConfig(config, nil); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("wrong type in file", func(t *testing.T) {
		config := &TestConfig{Config: writeTOML(t, "[test]\nint_field = \"many\"\n")}
		if err := LoadConfig(config, nil); err == nil {
			t.Error("expected type error")
		}
	})

	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv("OCRNODE_SIDECAR_TIMEOUT", "soon")
		if err := LoadConfig(&TestConfig{}, nil); err == nil {
			t.Error("expected duration error")
		}
	})
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Port", "port"},
		{"SidecarResourceDir", "sidecar-resource-dir"},
		{"AuthUsername", "auth-username"},
		{"LoggingLevel", "logging-level"},
		{"SidecarIdleIO", "sidecar-idle-io"},
		{"HTTPPort", "http-port"},
		{"Log2File", "log2-file"},
	}
	for _, tt := range tests {
		if got := fieldNameToFlag(tt.input); got != tt.expected {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"sidecar": map[string]any{"timeout": "90s"},
		"port":    int64(8090),
	}

	if got := getNestedValue(data, "sidecar.timeout"); got != "90s" {
		t.Errorf("got %v", got)
	}
	if got := getNestedValue(data, "port"); got != int64(8090) {
		t.Errorf("got %v", got)
	}
	if got := getNestedValue(data, "sidecar.grace"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := getNestedValue(data, "port.value"); got != nil {
		t.Errorf("expected nil when traversing a scalar, got %v", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"120", 120 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{"500ms", 500 * time.Millisecond, false},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetFieldValueDuration(t *testing.T) {
	var cfg TestConfig
	field := reflect.ValueOf(&cfg).Elem().FieldByName("Timeout")

	for _, tc := range []struct {
		value any
		want  time.Duration
	}{
		{"3s", 3 * time.Second},
		{int64(5), 5 * time.Second},
		{1.5, 1500 * time.Millisecond},
	} {
		if err := setFieldValue(field, tc.value); err != nil {
			t.Fatalf("setFieldValue(%v): %v", tc.value, err)
		}
		if cfg.Timeout != tc.want {
			t.Errorf("setFieldValue(%v) = %v, want %v", tc.value, cfg.Timeout, tc.want)
		}
	}

	if err := setFieldValue(field, true); err == nil {
		t.Error("expected error for bool duration")
	}
}

func TestLoadRuntime(t *testing.T) {
	path := writeTOML(t, `
[sidecar]
timeout = "45s"
grace = 0.25

[logging]
level = "warn"
format = "json"

[logging.modules]
sidecar = "debug"
`)

	rt, err := LoadRuntime(path)
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if rt.Timeout != 45*time.Second {
		t.Errorf("timeout = %v", rt.Timeout)
	}
	if rt.Grace != 250*time.Millisecond {
		t.Errorf("grace = %v", rt.Grace)
	}
	if rt.Logging.Level != "warn" || rt.Logging.Format != "json" {
		t.Errorf("logging = %+v", rt.Logging)
	}
	if rt.Logging.Modules["sidecar"] != "debug" {
		t.Errorf("modules = %v", rt.Logging.Modules)
	}
}

func TestLoadRuntimeUnsetKeepsZero(t *testing.T) {
	rt, err := LoadRuntime(writeTOML(t, "port = 8090\n"))
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if rt.Timeout != 0 || rt.Grace != 0 {
		t.Errorf("unset durations should be zero, got %v/%v", rt.Timeout, rt.Grace)
	}
	if rt.Logging.Level != "info" || rt.Logging.Format != "text" {
		t.Errorf("logging defaults not applied: %+v", rt.Logging)
	}
}

func TestLoadRuntimeErrors(t *testing.T) {
	if _, err := LoadRuntime(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file should be an error for reloads")
	}
	if _, err := LoadRuntime(writeTOML(t, "[sidecar]\ntimeout = \"whenever\"\n")); err == nil {
		t.Error("bad duration should be an error")
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	t.Run("flat module keys", func(t *testing.T) {
		cfg := LoadLoggingConfig(writeTOML(t, `
[logging]
level = "debug"
sidecar = "warn"
api = "error"
`))
		if cfg.Level != "debug" {
			t.Errorf("level = %q", cfg.Level)
		}
		want := map[string]string{"sidecar": "warn", "api": "error"}
		if !reflect.DeepEqual(cfg.Modules, want) {
			t.Errorf("modules = %v, want %v", cfg.Modules, want)
		}
	})

	t.Run("modules table", func(t *testing.T) {
		cfg := LoadLoggingConfig(writeTOML(t, "[logging.modules]\nmodels = \"debug\"\n"))
		if cfg.Modules["models"] != "debug" {
			t.Errorf("modules = %v", cfg.Modules)
		}
		if cfg.Level != "info" {
			t.Errorf("level should default to info, got %q", cfg.Level)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml"), writeTOML(t, "[[[")} {
			cfg := LoadLoggingConfig(path)
			if cfg.Level != "info" || cfg.Format != "text" || len(cfg.Modules) != 0 {
				t.Errorf("LoadLoggingConfig(%q) = %+v", path, cfg)
			}
		}
	})
}
