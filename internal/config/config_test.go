package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsMillisOrDefault(t *testing.T) {
	t.Setenv("TEST_MS_1", "250")
	if got := getEnvAsMillisOrDefault("TEST_MS_1", time.Second); got != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", got)
	}

	t.Setenv("TEST_MS_2", "0")
	if got := getEnvAsMillisOrDefault("TEST_MS_2", time.Second); got != 0 {
		t.Errorf("Expected zero backoff to be honoured, got %s", got)
	}

	if got := getEnvAsMillisOrDefault("TEST_MS_UNSET", 2*time.Second); got != 2*time.Second {
		t.Errorf("Expected default 2s, got %s", got)
	}
}

func TestGetEnvAsBoolOrDefault(t *testing.T) {
	t.Setenv("TEST_BOOL_1", "true")
	t.Setenv("TEST_BOOL_2", "nope")

	if !getEnvAsBoolOrDefault("TEST_BOOL_1", false) {
		t.Errorf("expected true")
	}
	if !getEnvAsBoolOrDefault("TEST_BOOL_2", true) {
		t.Errorf("expected default for unparsable value")
	}
	if getEnvAsBoolOrDefault("TEST_BOOL_UNSET", false) {
		t.Errorf("expected default for unset value")
	}
}

func TestGetEnvAsListOrDefault(t *testing.T) {
	t.Setenv("TEST_LIST_1", " model-a, ,model-b ")
	got := getEnvAsListOrDefault("TEST_LIST_1", DefaultModels)
	if !reflect.DeepEqual(got, []string{"model-a", "model-b"}) {
		t.Errorf("unexpected list: %v", got)
	}

	t.Setenv("TEST_LIST_2", " , ")
	got = getEnvAsListOrDefault("TEST_LIST_2", DefaultModels)
	if !reflect.DeepEqual(got, DefaultModels) {
		t.Errorf("expected default models, got %v", got)
	}

	got[0] = "mutated"
	if DefaultModels[0] == "mutated" {
		t.Fatalf("default list must not be shared with callers")
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "")
	t.Setenv("GEMINI_MODELS", "")
	t.Setenv("TRUST_PROXY", "")

	cfg := Load()
	if cfg.Port != "3000" {
		t.Errorf("Expected default port 3000, got %q", cfg.Port)
	}
	if len(cfg.GeminiModels) != 5 || cfg.GeminiModels[0] != "gemini-2.5-flash" {
		t.Errorf("unexpected default models: %v", cfg.GeminiModels)
	}
	if cfg.FallbackBackoff != time.Second || cfg.RepeatBackoff != 2*time.Second {
		t.Errorf("unexpected backoffs: %s / %s", cfg.FallbackBackoff, cfg.RepeatBackoff)
	}
	if cfg.TrustProxy {
		t.Errorf("forwarded headers must not be trusted by default")
	}
}
