package bot

import (
	"fmt"
	"strings"
)

// CallbackData is the decoded payload of an inline button.
type CallbackData struct {
	Kind     string
	Action   string
	SourceID string
}

// ParseCallback decodes "src:<id>" and "act:<action>:<id>" payloads.
func ParseCallback(data string) (CallbackData, error) {
	kind, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return CallbackData{}, fmt.Errorf("malformed callback %q", data)
	}
	switch kind {
	case callbackSource:
		return CallbackData{Kind: kind, SourceID: rest}, nil
	case callbackAction:
		action, id, ok := strings.Cut(rest, ":")
		if !ok || action == "" || id == "" {
			return CallbackData{}, fmt.Errorf("malformed action callback %q", data)
		}
		return CallbackData{Kind: kind, Action: action, SourceID: id}, nil
	default:
		return CallbackData{}, fmt.Errorf("unknown callback kind %q", kind)
	}
}

// ParseSourceArg extracts a source id from a command argument string.
func ParseSourceArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", fmt.Errorf("source id is required")
	}
	return fields[0], nil
}
