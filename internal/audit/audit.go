// Package audit records which embedder, backend and config file each CLI
// invocation ran with, and how it ended. Environment values are grouped by
// area; credentials appear as "set" or "unset" only.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// secretSuffixes mark an env var as a credential.
var secretSuffixes = []string{"_API_KEY", "_TOKEN", "_SECRET"}

// groups lists the env vars recorded per area, in log order.
var groups = []struct {
	name string
	keys []string
}{
	{"embedding", []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"EMBEDDING_ENDPOINT", "EMBEDDING_TIMEOUT", "EMBEDDING_API_KEY",
		"OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY",
		"DASHSCOPE_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OLLAMA_HOST",
	}},
	{"store", []string{
		"VECTOR_BACKEND", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"QDRANT_API_KEY", "PMRAG_SNAPSHOT_DB",
	}},
	{"server", []string{"PMRAG_HOST", "PMRAG_PORT", "PMRAG_API_KEY"}},
	{"logging", []string{"LOG_LEVEL", "LOG_FORMAT"}},
}

// LogCommandStart records the command, its config file and the environment
// it will read.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(groups)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
	)
	for _, g := range groups {
		env := make([]any, 0, len(g.keys))
		for _, k := range g.keys {
			env = append(env, slog.String(k, SanitiseKey(k, os.Getenv(k))))
		}
		attrs = append(attrs, slog.Group(g.name, env...))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// LogCommandEnd records how long the command ran and whether it failed.
func LogCommandEnd(ctx context.Context, log *slog.Logger, command string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.LogAttrs(ctx, level, "audit: command end", attrs...)
}

// SanitiseKey returns value unchanged for ordinary keys and only its
// presence for credentials. Empty values read "unset" either way.
func SanitiseKey(key, value string) string {
	switch {
	case value == "":
		return "unset"
	case isSecret(key):
		return "set"
	default:
		return value
	}
}

func isSecret(key string) bool {
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// displayPath shortens the home directory to "~".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if rest, ok := strings.CutPrefix(p, home); ok {
			return "~" + rest
		}
	}
	return p
}
