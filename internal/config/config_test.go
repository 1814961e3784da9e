package config

import (
	"os"
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

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"parses duration", "TEST_DUR_1", "150ms", time.Second, 150 * time.Millisecond},
		{"uses default for empty", "TEST_DUR_2", "", time.Second, time.Second},
		{"uses default for garbage", "TEST_DUR_3", "soon", time.Second, time.Second},
		{"uses default for negative", "TEST_DUR_4", "-5s", time.Second, time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsDurationOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"API_BASE_URL", "ENV", "CHAT_PAGE_SIZE", "LOOP_INTERVAL", "TOAST_DURATION"} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.APIBaseURL != "http://localhost:8080/api" {
		t.Errorf("Expected default API base, got %q", cfg.APIBaseURL)
	}
	if cfg.ChatPageSize != 5 {
		t.Errorf("Expected chat page size 5, got %d", cfg.ChatPageSize)
	}
	if cfg.LoopInterval != 120*time.Millisecond {
		t.Errorf("Expected loop interval 120ms, got %v", cfg.LoopInterval)
	}
	if cfg.ToastDuration != 2200*time.Millisecond {
		t.Errorf("Expected toast duration 2.2s, got %v", cfg.ToastDuration)
	}
}

func TestLoad_TrimsTrailingSlash(t *testing.T) {
	os.Setenv("API_BASE_URL", "https://recipes.example.com/api/")
	defer os.Unsetenv("API_BASE_URL")

	cfg := Load()
	if cfg.MustAPIBase() != "https://recipes.example.com/api" {
		t.Errorf("Expected trimmed base, got %q", cfg.APIBaseURL)
	}
}

func TestMustAPIBase_PanicsOnRelative(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for relative API base")
		}
	}()

	cfg := &Config{APIBaseURL: "/api"}
	cfg.MustAPIBase()
}
