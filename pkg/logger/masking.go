package logger

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// MaskedLogger provides methods to safely log connection strings and
// provider credentials
type MaskedLogger struct {
	*Logger
}

// NewMaskedLogger creates a new credential-masking logger
func NewMaskedLogger() *MaskedLogger {
	return &MaskedLogger{
		Logger: GetLogger(),
	}
}

// MaskDSN strips the password from a database or broker URL, keeping
// enough of it to identify the target in logs
func (ml *MaskedLogger) MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return shortHash(dsn)
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}
	return parsed.String()
}

// MaskEndpoint reduces a routing-endpoint URL to its host plus a stable
// short hash, so the same endpoint is recognizable across log lines
// without exposing the full address
func (ml *MaskedLogger) MaskEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return shortHash(endpoint)
	}
	return fmt.Sprintf("%s#%s", parsed.Host, shortHash(endpoint))
}

// MaskSecret keeps a short identifying prefix of an access key or token
func (ml *MaskedLogger) MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}

// MaskFields masks values in a field map by key name before logging
func (ml *MaskedLogger) MaskFields(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))

	for key, value := range fields {
		str, isString := value.(string)
		if !isString {
			masked[key] = value
			continue
		}

		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "dsn") || strings.Contains(lowerKey, "url"):
			masked[key] = ml.MaskDSN(str)
		case strings.Contains(lowerKey, "secret") || strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "key"):
			masked[key] = ml.MaskSecret(str)
		case strings.Contains(lowerKey, "endpoint"):
			masked[key] = ml.MaskEndpoint(str)
		default:
			masked[key] = value
		}
	}
	return masked
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum[:4])
}
