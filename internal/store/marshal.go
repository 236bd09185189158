package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// marshalParams converts run parameters to JSON TEXT for storage.
// Map keys are emitted sorted, so equal maps store identical text.
func marshalParams(params map[string]string) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalParams parses JSON TEXT back into run parameters.
// Always returns a non-nil map.
func unmarshalParams(data string) (map[string]string, error) {
	params := map[string]string{}
	if data == "" || data == "{}" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
