package sseutil

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestParseSSELine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		line  string
		event string
		data  string
		ok    bool
	}{
		{name: "data line", line: `data: {"x":1}`, data: `{"x":1}`, ok: true},
		{name: "data no space", line: "data:[DONE]", data: "[DONE]", ok: true},
		{name: "event line", line: "event: messageStop", event: "messageStop", ok: true},
		{name: "comment", line: ": keepalive", ok: false},
		{name: "empty", line: "", ok: false},
		{name: "no colon", line: "garbage", ok: false},
		{name: "unknown field", line: "retry: 100", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			event, data, ok := ParseSSELine(tt.line)
			if event != tt.event || data != tt.data || ok != tt.ok {
				t.Errorf("ParseSSELine(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.line, event, data, ok, tt.event, tt.data, tt.ok)
			}
		})
	}
}

func TestNewScanner_LongLines(t *testing.T) {
	t.Parallel()

	long := "data: " + strings.Repeat("x", 32*1024)
	s := NewScanner(strings.NewReader(long + "\n"))
	if !s.Scan() {
		t.Fatalf("Scan failed: %v", s.Err())
	}
	if s.Text() != long {
		t.Error("long line truncated")
	}
}

func TestBuildDeltaChunk(t *testing.T) {
	t.Parallel()

	b := BuildDeltaChunk("bedrock-123", "anthropic.claude-3-sonnet-20240229-v1:0", "hello")
	if got := gjson.GetBytes(b, "object").String(); got != "chat.completion.chunk" {
		t.Errorf("object = %q", got)
	}
	if got := gjson.GetBytes(b, "choices.0.delta.content").String(); got != "hello" {
		t.Errorf("delta.content = %q", got)
	}
	if gjson.GetBytes(b, "choices.0.finish_reason").Type != gjson.Null {
		t.Error("finish_reason not null on delta chunk")
	}
}

func TestBuildFinishChunk(t *testing.T) {
	t.Parallel()

	b := BuildFinishChunk("bedrock-123", "anthropic.claude-3-sonnet-20240229-v1:0", "stop")
	if got := gjson.GetBytes(b, "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish_reason = %q", got)
	}
	if gjson.GetBytes(b, "choices.0.delta.content").Exists() {
		t.Error("finish chunk carries content")
	}
}
