package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Audit store. DB_DRIVER is "sqlite" (embedded, default) or "postgres".
	DB_DRIVER   string
	DB_PATH     string
	DB_USERNAME string
	DB_PASSWORD string
	DB_HOST     string
	DB_PORT     string
	DB_NAME     string
	DISABLE_TLS string

	// Safety policy. SECURE_MODE disables the degraded sandbox fallback.
	// ENFORCE_SHELL_ALLOWLIST rejects any command not in the allowlist.
	// The two are independent flags on purpose: disabling the fallback says
	// nothing about which outer commands are acceptable.
	SECURE_MODE             bool
	ENFORCE_SHELL_ALLOWLIST bool
	STRICT_SHELL_MODE       bool
	MANUAL_APPROVAL         bool

	// Extra shell commands to block or allow, comma separated, merged with
	// the built-in lists.
	SHELL_BLOCKLIST []string
	SHELL_ALLOWLIST []string

	// Execution limits.
	MAX_OUTPUT_BYTES    int
	SHELL_TIMEOUT_MS    int
	SANDBOX_TIMEOUT_MS  int
	MAX_FILE_READ_BYTES int64
	MAX_ITERATIONS      int

	// Sandbox backend: "docker", "k8s" or "none".
	SANDBOX_BACKEND string
	SANDBOX_IMAGE   string
	SANDBOX_NETWORK string

	// Model backend. LLM_PROVIDER is "OpenAI", "Anthropic" or "Ollama",
	// all spoken through the OpenAI-compatible completions API.
	LLM_PROVIDER string
	LLM_BASE_URL string
	LLM_API_KEY  string
	LLM_MODEL    string

	// Per-user request rate limit.
	RATE_LIMIT_REQUESTS  int
	RATE_LIMIT_WINDOW_MS int

	// Filesystem confinement.
	WORKSPACE_ROOT string

	// Optional distributed rate limiting.
	REDIS_ADDR string

	// Control plane.
	SERVER_PORT string

	// Otel
	OTEL_EXPORTER_OTLP_ENDPOINT string
}

func ReadConfig() *Config {
	return &Config{
		DB_DRIVER:   getEnvOrDefault("DB_DRIVER", "sqlite"),
		DB_PATH:     getEnvOrDefault("DB_PATH", "warden-audit.db"),
		DB_USERNAME: os.Getenv("DB_USERNAME"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DISABLE_TLS: os.Getenv("DISABLE_TLS"),

		SECURE_MODE:             os.Getenv("SECURE_MODE") == "true",
		ENFORCE_SHELL_ALLOWLIST: os.Getenv("ENFORCE_SHELL_ALLOWLIST") == "true",
		STRICT_SHELL_MODE:       os.Getenv("STRICT_SHELL_MODE") == "true",
		MANUAL_APPROVAL:         os.Getenv("MANUAL_APPROVAL") == "true",

		SHELL_BLOCKLIST: splitList(os.Getenv("SHELL_BLOCKLIST")),
		SHELL_ALLOWLIST: splitList(os.Getenv("SHELL_ALLOWLIST")),

		MAX_OUTPUT_BYTES:    getEnvInt("MAX_OUTPUT_BYTES", 1<<20),
		SHELL_TIMEOUT_MS:    getEnvInt("SHELL_TIMEOUT_MS", 30_000),
		SANDBOX_TIMEOUT_MS:  getEnvInt("SANDBOX_TIMEOUT_MS", 60_000),
		MAX_FILE_READ_BYTES: int64(getEnvInt("MAX_FILE_READ_BYTES", 10<<20)),
		MAX_ITERATIONS:      getEnvInt("MAX_ITERATIONS", 10),

		SANDBOX_BACKEND: getEnvOrDefault("SANDBOX_BACKEND", "docker"),
		SANDBOX_IMAGE:   getEnvOrDefault("SANDBOX_IMAGE", "warden-sandbox:latest"),
		SANDBOX_NETWORK: os.Getenv("SANDBOX_NETWORK"),

		LLM_PROVIDER: getEnvOrDefault("LLM_PROVIDER", "OpenAI"),
		LLM_BASE_URL: os.Getenv("LLM_BASE_URL"),
		LLM_API_KEY:  os.Getenv("LLM_API_KEY"),
		LLM_MODEL:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),

		RATE_LIMIT_REQUESTS:  getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RATE_LIMIT_WINDOW_MS: getEnvInt("RATE_LIMIT_WINDOW_MS", 60_000),

		WORKSPACE_ROOT: getEnvOrDefault("WORKSPACE_ROOT", "workspaces"),

		REDIS_ADDR: os.Getenv("REDIS_ADDR"),

		SERVER_PORT: getEnvOrDefault("SERVER_PORT", "8090"),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
