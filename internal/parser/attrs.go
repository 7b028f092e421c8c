package parser

import (
	"fmt"
	"strings"

	"github.com/weftworks/weft/internal/action"
)

// parseAttributes interprets the text between "<action" and ">".
// Attributes are key=value pairs separated by whitespace; values may be
// double-quoted (required when they contain whitespace) or bare.
// Unknown attribute keys are ignored so newer emitters stay compatible.
func parseAttributes(s string) (action.Kind, string, error) {
	var kindVal, pathVal string
	var sawKind, sawPath bool

	i := 0
	for i < len(s) {
		// skip whitespace between pairs
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return "", "", fmt.Errorf("malformed attribute %q", strings.TrimSpace(s[i:]))
		}
		key := strings.TrimSpace(s[i : i+eq])
		if key == "" {
			return "", "", fmt.Errorf("attribute with empty name")
		}
		i += eq + 1

		var val string
		if i < len(s) && s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return "", "", fmt.Errorf("unterminated quote in attribute %q", key)
			}
			val = s[i+1 : i+1+end]
			i += end + 2
		} else {
			start := i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			val = s[start:i]
		}

		switch key {
		case "kind":
			kindVal, sawKind = val, true
		case "path":
			pathVal, sawPath = val, true
		}
	}

	if !sawKind {
		return "", "", fmt.Errorf("opening marker missing kind attribute")
	}
	kind, err := action.ParseKind(kindVal)
	if err != nil {
		return "", "", err
	}
	if kind == action.KindFileWrite && (!sawPath || pathVal == "") {
		return "", "", fmt.Errorf("file-write marker missing path attribute")
	}
	if kind != action.KindFileWrite {
		// path is meaningful only for file writes
		pathVal = ""
	}
	return kind, pathVal, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
