package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const defaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders human readable single-line entries:
//
//	2025-01-02T15:04:05.000Z INFO  [backlog] backlog opened dir=/data segments=3
type TextFormatter struct {
	TimeFormat string
	// ShowCaller appends caller=file:line.
	ShowCaller bool
	// DisableTimestamp drops the leading timestamp.
	DisableTimestamp bool
}

func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var b bytes.Buffer
	if !f.DisableTimestamp {
		tf := f.TimeFormat
		if tf == "" {
			tf = defaultTimeFormat
		}
		b.WriteString(e.Timestamp.Format(tf))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", e.Level.String())
	if c, ok := e.Fields[ComponentKey]; ok {
		fmt.Fprintf(&b, "[%v] ", c)
	}
	b.WriteString(e.Message)
	for _, k := range sortedKeys(e.Fields) {
		if k == ComponentKey {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(textValue(e.Fields[k])))
	}
	if f.ShowCaller && e.Caller != "" {
		b.WriteString(" caller=")
		b.WriteString(e.Caller)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// JSONFormatter renders one JSON object per entry.
type JSONFormatter struct {
	TimeFormat string
	ShowCaller bool
}

func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	tf := f.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	m := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		m[k] = jsonValue(v)
	}
	m["time"] = e.Timestamp.Format(tf)
	m["level"] = strings.ToLower(e.Level.String())
	m["msg"] = e.Message
	if f.ShowCaller && e.Caller != "" {
		m["caller"] = e.Caller
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal log entry: %w", err)
	}
	return append(out, '\n'), nil
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func jsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case error:
		return t.Error()
	case time.Duration:
		return t.String()
	default:
		return v
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
