package logger

import (
	"log/slog"
	"strings"
)

// redactedValue replaces sensitive values in log output.
const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never logged in
// the clear. Matching is case-insensitive on substrings so that
// "authKey", "shared_secret" and "node_token" all hit.
var sensitiveKeys = []string{
	"key",
	"secret",
	"token",
	"password",
	"credential",
	"mac",
}

// redactSensitive redacts attribute values whose keys indicate secret
// material.
func redactSensitive(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}
