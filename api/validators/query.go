package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
)

// maxQueryValueLen bounds free-form query values such as pagination cursors.
const maxQueryValueLen = 256

// ParseQueryInt reads an optional integer parameter within [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, msgInvalidData).WithDetails(map[string]any{"field": key, "error": "must be numeric"})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, msgInvalidData).WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// QueryString returns the trimmed parameter, rejecting values longer than
// maxQueryValueLen.
func QueryString(r *http.Request, key string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if len(raw) > maxQueryValueLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, msgInvalidData).WithDetails(map[string]any{"field": key, "max_length": maxQueryValueLen})
	}
	return raw, nil
}
