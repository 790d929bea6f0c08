package agent

import (
	"reflect"
	"testing"
)

func TestEngineArgs(t *testing.T) {
	cases := []struct {
		engine Engine
		want   []string
	}{
		{EngineClaude, []string{"--dangerously-skip-permissions", "--verbose", "--output-format", "stream-json", "-p", "do it"}},
		{EngineOpencode, []string{"run", "--format", "json", "do it"}},
		{EngineCursor, []string{"--print", "--force", "--output-format", "stream-json", "do it"}},
		{EngineQwen, []string{"--output-format", "stream-json", "--approval-mode", "yolo", "-p", "do it"}},
		{EngineDroid, []string{"exec", "--output-format", "stream-json", "--auto", "medium", "do it"}},
		{EngineCodex, []string{"exec", "--full-auto", "--json", "--output-last-message", "/tmp/last", "do it"}},
	}
	for _, tc := range cases {
		got := tc.engine.Args("do it", "/tmp/last")
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s args = %v, want %v", tc.engine, got, tc.want)
		}
	}
}

func TestEngineArgs_CodexWithoutLastMessage(t *testing.T) {
	got := EngineCodex.Args("p", "")
	want := []string{"exec", "--full-auto", "--json", "p"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestEngineBinary(t *testing.T) {
	if EngineCursor.Binary() != "agent" {
		t.Errorf("cursor binary = %q, want agent", EngineCursor.Binary())
	}
	if EngineClaude.Binary() != "claude" {
		t.Errorf("claude binary = %q", EngineClaude.Binary())
	}
}

func TestEngineEnv(t *testing.T) {
	env := EngineOpencode.Env()
	if len(env) != 1 || env[0] != `OPENCODE_PERMISSION={"*":"allow"}` {
		t.Errorf("opencode env = %v", env)
	}
	if len(EngineClaude.Env()) != 0 {
		t.Errorf("claude should have no extra env")
	}
}

func TestParseEngine(t *testing.T) {
	if e, err := ParseEngine(""); err != nil || e != EngineClaude {
		t.Errorf("empty engine = %v, %v; want claude", e, err)
	}
	if e, err := ParseEngine("droid"); err != nil || e != EngineDroid {
		t.Errorf("droid = %v, %v", e, err)
	}
	if _, err := ParseEngine("gpt"); err == nil {
		t.Error("expected error for unknown engine")
	}
}
