// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// FirstSet returns the first of values that is not the zero value of T.
func FirstSet[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Getenv returns the environment variable key with surrounding whitespace
// removed, or fallback when it is unset or blank.
func Getenv(key, fallback string) string {
	return FirstSet(strings.TrimSpace(os.Getenv(key)), fallback)
}

// GetenvInt parses the environment variable key as an integer. Unset and
// malformed values yield fallback; malformed ones are logged.
func GetenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring invalid integer environment variable", "error", err, "key", key, "value", raw)
		return fallback
	}
	return v
}
