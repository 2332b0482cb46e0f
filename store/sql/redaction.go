package sqlstore

import "regexp"

const redactedValue = "[REDACTED]"

var (
	// query parameters and form fields that carry marketplace or SerpAPI secrets
	secretParamPattern = regexp.MustCompile(`(?i)\b(access_token|refresh_token|client_secret|api_key|code)=[^&\s"]+`)
	bearerPattern      = regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9\-._~+/]+=*`)
	sensitiveKey       = regexp.MustCompile(`(?i)secret|token|authorization|api_?key|credential|password`)
)

// RedactText masks tokens and keys embedded in free text such as upstream
// error messages that echo a request URL.
func RedactText(text string) string {
	text = secretParamPattern.ReplaceAllString(text, "${1}="+redactedValue)
	return bearerPattern.ReplaceAllString(text, "${1} "+redactedValue)
}

// RedactMetadata copies metadata with secret-looking keys masked. Nested maps
// and lists are walked, and string values go through RedactText.
func RedactMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if sensitiveKey.MatchString(key) {
			out[key] = redactedValue
			continue
		}
		out[key] = redactAny(value)
	}
	return out
}

func redactAny(value any) any {
	switch v := value.(type) {
	case string:
		return RedactText(v)
	case map[string]any:
		return RedactMetadata(v)
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, redactAny(item))
		}
		return items
	}
	return value
}
