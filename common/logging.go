package common

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Log levels for hierarchical logging
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var logLevels = map[string]int{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
	"fatal": LevelFatal,
}

// shouldLog determines if a message at the given level should be logged
func shouldLog(level string) bool {
	currentLevel := Env("USERDECK_LOG_LEVEL", "info")

	currentLevelNum, ok1 := logLevels[strings.ToLower(currentLevel)]
	targetLevelNum, ok2 := logLevels[strings.ToLower(level)]

	if !ok1 || !ok2 {
		return true
	}

	return targetLevelNum >= currentLevelNum
}

// logOutput handles both text and JSON output based on USERDECK_LOG_FORMAT
func logOutput(level string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	// Ensure no secrets are accidentally logged
	message = SanitizeForLogging(message)

	if Env("USERDECK_LOG_FORMAT", "text") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     strings.ToLower(level),
			"message":   message,
		}
		if jsonBytes, err := json.Marshal(entry); err == nil {
			fmt.Println(string(jsonBytes))
		} else {
			fmt.Printf("%s: %s\n", level, message)
		}
	} else {
		fmt.Printf("%s/%s %s: %s\n",
			time.Now().Format("2006/01/02"),
			time.Now().Format("15:04:05"),
			level, message)
	}
}

// DebugLog logs debug messages only if log level allows it
func DebugLog(format string, args ...interface{}) {
	if shouldLog("debug") {
		logOutput("DEBUG", format, args...)
	}
}

// InfoLog logs info messages only if log level allows it
func InfoLog(format string, args ...interface{}) {
	if shouldLog("info") {
		logOutput("INFO", format, args...)
	}
}

// WarnLog logs warning messages only if log level allows it
func WarnLog(format string, args ...interface{}) {
	if shouldLog("warn") {
		logOutput("WARN", format, args...)
	}
}

// ErrorLog logs error messages only if log level allows it
func ErrorLog(format string, args ...interface{}) {
	if shouldLog("error") {
		logOutput("ERROR", format, args...)
	}
}

// FatalLog logs fatal messages and exits (always shown). Goes through
// logOutput so fatal lines get the same secret sanitization as every
// other level.
func FatalLog(format string, args ...interface{}) {
	logOutput("FATAL", format, args...)
	os.Exit(1)
}

// Values of these env vars never appear in log lines.
var protectedEnvVars = []string{
	"USERDECK_DB_PASS",
	"USERDECK_DB_DSN",
	"USERDECK_SESSION_SECRET",
	"USERDECK_FIRST_SUPERUSER_PASSWORD",
	"USERDECK_SMTP_PASS",
	"OIDC_CLIENT_SECRET",
	"OIDC_CLIENT_ID",
	"POSTGRES_PASSWORD",
}

// SanitizeForLogging removes potential secrets from a string before logging
func SanitizeForLogging(line string) string {
	for _, envVar := range protectedEnvVars {
		if value := os.Getenv(envVar); value != "" && value != "true" && value != "false" {
			line = strings.ReplaceAll(line, value, "***REDACTED***")
		}
		fileVar := envVar + "_FILE"
		if fileContent := os.Getenv(fileVar); fileContent != "" {
			line = strings.ReplaceAll(line, fileContent, "***REDACTED***")
		}
	}

	// Patterns that might contain secrets
	patterns := []string{
		`(?i)(password|passwd|pwd|secret|key|token|api[-_]?key|auth|credential|bearer)[-_=:\s]*[^\s]+`,
		`(?i)(postgres|postgresql|mysql|redis|smtp)://[^@]+@[^\s]+`,
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		line = re.ReplaceAllStringFunc(line, func(match string) string {
			parts := strings.SplitN(match, "=", 2)
			if len(parts) == 2 {
				return parts[0] + "=***REDACTED***"
			}
			parts = strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ":***REDACTED***"
			}
			return "***REDACTED***"
		})
	}
	return line
}
