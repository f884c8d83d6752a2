package bundler

import (
	"fmt"
	"strings"
)

// Report renders all errors and the warnings not matched by filters. A
// warning is dropped when its file or text contains any filter string.
func Report(r *Result, filters []string) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, m := range r.Errors {
		writeMessage(&b, "error", m)
	}
	for _, m := range r.Warnings {
		if filtered(m, filters) {
			continue
		}
		writeMessage(&b, "warning", m)
	}
	return strings.TrimRight(b.String(), "\n")
}

func filtered(m Message, filters []string) bool {
	for _, f := range filters {
		if f == "" {
			continue
		}
		if strings.Contains(m.File, f) || strings.Contains(m.Text, f) {
			return true
		}
	}
	return false
}

func writeMessage(b *strings.Builder, kind string, m Message) {
	switch {
	case m.File != "" && m.Line > 0:
		fmt.Fprintf(b, "%s:%d:%d: %s: %s\n", m.File, m.Line, m.Column, kind, m.Text)
	case m.File != "":
		fmt.Fprintf(b, "%s: %s: %s\n", m.File, kind, m.Text)
	default:
		fmt.Fprintf(b, "%s: %s\n", kind, m.Text)
	}
}
