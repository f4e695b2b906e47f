package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidTargetPlatform is a configuration error.
var ErrInvalidTargetPlatform = errors.New("invalid target platform")

const (
	PlatformARM   = "arm"
	PlatformAMD64 = "amd64"
)

// NormalizeTargetPlatform accepts an empty value, meaning no specific target.
func NormalizeTargetPlatform(raw string) (string, error) {
	platform := strings.ToLower(strings.TrimSpace(raw))
	switch platform {
	case "", PlatformARM, PlatformAMD64:
		return platform, nil
	case "arm64", "aarch64":
		return PlatformARM, nil
	case "x86_64", "x64":
		return PlatformAMD64, nil
	default:
		return "", fmt.Errorf("%w %q (expected %s|%s)", ErrInvalidTargetPlatform, raw, PlatformARM, PlatformAMD64)
	}
}

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}
