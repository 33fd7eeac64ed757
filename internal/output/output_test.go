package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrviduus/ReplyMate-sub000/internal/engine"
	"github.com/mrviduus/ReplyMate-sub000/internal/provider"
	"github.com/mrviduus/ReplyMate-sub000/internal/quality"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		RequestID:    "req-1",
		Text:         "Congrats on the 40% growth, that curve is impressive.",
		Provider:     provider.TypeOpenAI,
		Model:        "gpt-4o-mini",
		InputTokens:  30,
		OutputTokens: 12,
		Latency:      1200 * time.Millisecond,
		Quality:      quality.Verdict{Valid: true, Score: 100},
	}
}

func TestNewWriter_Formats(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatText, "*output.TextWriter"},
		{Format(""), "*output.TextWriter"},
		{FormatJSON, "*output.JSONWriter"},
		{FormatJSONL, "*output.JSONLWriter"},
		{FormatYAML, "*output.YAMLWriter"},
	}
	for _, tt := range tests {
		w, err := NewWriter(&bytes.Buffer{}, tt.format)
		if err != nil {
			t.Fatalf("NewWriter(%q): %v", tt.format, err)
		}
		if got := typeName(w); got != tt.want {
			t.Errorf("NewWriter(%q) = %s, want %s", tt.format, got, tt.want)
		}
	}

	if _, err := NewWriter(&bytes.Buffer{}, Format("xml")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextWriter:
		return "*output.TextWriter"
	case *JSONWriter:
		return "*output.JSONWriter"
	case *JSONLWriter:
		return "*output.JSONLWriter"
	case *YAMLWriter:
		return "*output.YAMLWriter"
	default:
		return "unknown"
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if f, err := ParseFormat("yaml"); err != nil || f != FormatYAML {
		t.Errorf("ParseFormat(yaml) = %v, %v", f, err)
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for csv")
	}
}

func TestTextWriter_Result(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewTextWriter(buf)
	r := sampleResult()
	r.Retried = true

	if err := w.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, r.Text+"\n") {
		t.Errorf("reply text should come first:\n%s", out)
	}
	for _, want := range []string{"openai", "gpt-4o-mini", "score 100", "retried"} {
		if !strings.Contains(out, want) {
			t.Errorf("footer missing %q:\n%s", want, out)
		}
	}
}

func TestJSONWriter_SingleResultIsObject(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf)
	if err := w.Write(sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("single result should decode as an object: %v", err)
	}
	if got["provider"] != "openai" || got["request_id"] != "req-1" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestJSONWriter_MultipleResultsAreArray(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf)
	w.Write(sampleResult())
	w.Write(sampleResult())
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("multiple results should decode as an array: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestJSONLWriter_OneObjectPerLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONLWriter(buf)
	w.Write(sampleResult())
	w.Write(sampleResult())
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	for _, line := range lines {
		var got map[string]any
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Errorf("line %q not valid JSON: %v", line, err)
		}
	}
}

func TestYAMLWriter_Result(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewYAMLWriter(buf)
	if err := w.Write(sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("yaml decode: %v", err)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected payload: %v", got)
	}
}
