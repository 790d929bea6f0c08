package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_ResultEvent(t *testing.T) {
	stdout := `{"type":"system","subtype":"init"}
{"type":"result","result":"All done","usage":{"input_tokens":120,"output_tokens":45},"duration_ms":900}
`
	res := Parse(EngineClaude, stdout, "")
	if res.Err != "" {
		t.Fatalf("unexpected error %q", res.Err)
	}
	if res.Response != "All done" {
		t.Errorf("response = %q", res.Response)
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 45 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if res.Usage.DurationMS == nil || *res.Usage.DurationMS != 900 {
		t.Errorf("duration = %v", res.Usage.DurationMS)
	}
	if res.Usage.Cost != nil {
		t.Errorf("cost should be absent, got %v", *res.Usage.Cost)
	}
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	stdout := "not json at all\n{\"type\":\"result\",\"result\":\"ok\"}\n{broken\n"
	res := Parse(EngineClaude, stdout, "")
	if res.Err != "" || res.Response != "ok" {
		t.Fatalf("res = %+v", res)
	}
}

func TestParse_ErrorEvent(t *testing.T) {
	cases := []struct {
		name   string
		stdout string
		want   string
	}{
		{"nested message", `{"type":"error","error":{"message":"rate limited"}}`, "rate limited"},
		{"flat message", `{"type":"error","message":"boom"}`, "boom"},
		{"no message", `{"type":"error"}`, "Agent error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse(EngineClaude, tc.stdout, "")
			if res.Err != tc.want {
				t.Errorf("err = %q, want %q", res.Err, tc.want)
			}
		})
	}
}

func TestParse_Opencode(t *testing.T) {
	stdout := `{"type":"text","part":{"text":"Hello "}}
{"type":"text","part":{"text":"world"}}
{"type":"step_finish","tokens":{"input":10,"output":4},"cost":0.002}
`
	res := Parse(EngineOpencode, stdout, "")
	if res.Response != "Hello world" {
		t.Errorf("response = %q", res.Response)
	}
	if res.Usage.InputTokens != 10 || res.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if res.Usage.Cost == nil || *res.Usage.Cost != 0.002 {
		t.Errorf("cost = %v", res.Usage.Cost)
	}
}

func TestParse_Cursor_AssistantFallback(t *testing.T) {
	stdout := `{"type":"assistant","message":{"content":[{"type":"text","text":"From assistant"}]}}
{"type":"result","usage":{"input_tokens":1,"output_tokens":2}}
`
	res := Parse(EngineCursor, stdout, "")
	if res.Response != "From assistant" {
		t.Errorf("response = %q", res.Response)
	}
}

func TestParse_Droid_CompletionEvent(t *testing.T) {
	stdout := `{"type":"completion","finalText":"Droid done","durationMs":333}`
	res := Parse(EngineDroid, stdout, "")
	if res.Response != "Droid done" {
		t.Errorf("response = %q", res.Response)
	}
	if res.Usage.DurationMS == nil || *res.Usage.DurationMS != 333 {
		t.Errorf("duration = %v", res.Usage.DurationMS)
	}
}

// A trailing result event without a result field must not clobber text
// recovered from earlier completion or assistant events.
func TestParse_EmptyResultKeepsEarlierText(t *testing.T) {
	stdout := `{"type":"completion","finalText":"Droid done"}
{"type":"result","usage":{"input_tokens":3,"output_tokens":4}}
`
	res := Parse(EngineDroid, stdout, "")
	if res.Response != "Droid done" {
		t.Errorf("response = %q", res.Response)
	}
	if res.Usage.InputTokens != 3 || res.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestParse_Codex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last.txt")
	if err := os.WriteFile(path, []byte("Task completed successfully.\nActual answer\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	res := Parse(EngineCodex, `{"type":"turn"}`, path)
	if res.Response != "Actual answer" {
		t.Errorf("response = %q", res.Response)
	}
}

func TestParse_Codex_MissingFile(t *testing.T) {
	res := Parse(EngineCodex, "", filepath.Join(t.TempDir(), "nope.txt"))
	if res.Response != "" || res.Err != "" {
		t.Errorf("res = %+v", res)
	}
}

func TestUsageAdd(t *testing.T) {
	cost := 0.5
	ms := int64(100)

	var total Usage
	total.Add(Usage{InputTokens: 1, OutputTokens: 2})
	total.Add(Usage{InputTokens: 3, OutputTokens: 4, Cost: &cost, DurationMS: &ms})
	total.Add(Usage{InputTokens: 5, OutputTokens: 6, Cost: &cost})

	if total.InputTokens != 9 || total.OutputTokens != 12 {
		t.Errorf("tokens = %d/%d", total.InputTokens, total.OutputTokens)
	}
	if total.Cost == nil || *total.Cost != 1.0 {
		t.Errorf("cost = %v", total.Cost)
	}
	if total.DurationMS == nil || *total.DurationMS != 100 {
		t.Errorf("duration = %v", total.DurationMS)
	}
}

func TestUsageAdd_AbsentStaysAbsent(t *testing.T) {
	var total Usage
	total.Add(Usage{InputTokens: 1})
	total.Add(Usage{OutputTokens: 2})
	if total.Cost != nil || total.DurationMS != nil {
		t.Errorf("optional fields should stay absent: %+v", total)
	}
}
