// Package debug produces human readable dumps for debug reports.
package debug

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const indent = "  "

// TreeWriter accumulates indented lines.
type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{
		w: &strings.Builder{},
	}
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

func (tw *TreeWriter) Bytes() []byte {
	return []byte(tw.w.String())
}

func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.w.WriteString(strings.Repeat(indent, depth))
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// Text writes labeled quoted value, values longer than limit runes are cut.
// Zero limit means no limit, empty value is written as is.
func (tw *TreeWriter) Text(depth int, label, value string, limit int) {
	tw.w.WriteString(strings.Repeat(indent, depth))
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(encodeText(value, limit))
	tw.w.WriteByte('\n')
}

func encodeText(raw string, limit int) string {
	if raw == "" {
		return raw
	}
	if limit > 0 && utf8.RuneCountInString(raw) > limit {
		runes := []rune(raw)
		return strconv.Quote(string(runes[:limit])) + "..."
	}
	return strconv.Quote(raw)
}
