package agent

import (
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Result is the canonical decoding of an agent's streamed output.
type Result struct {
	Response string
	Usage    Usage
	Err      string // agent-reported error, empty on success
}

// Parse decodes agent stdout into a canonical Result. The stream is a
// sequence of JSON lines; undecodable lines are skipped rather than
// failing the whole stream. lastMessagePath is the codex last-message
// file, unused by other engines.
func Parse(engine Engine, stdout, lastMessagePath string) Result {
	var events []gjson.Result
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || !gjson.Valid(line) {
			continue
		}
		events = append(events, gjson.Parse(line))
	}

	for _, ev := range events {
		if ev.Get("type").String() == "error" {
			msg := ev.Get("error.message").String()
			if msg == "" {
				msg = ev.Get("message").String()
			}
			if msg == "" {
				msg = "Agent error"
			}
			return Result{Err: msg}
		}
	}

	var res Result
	switch engine {
	case EngineOpencode:
		res = parseOpencode(events)
	case EngineCodex:
		res = parseCodex(lastMessagePath)
	default:
		res = parseStream(engine, events)
	}

	res.Response = strings.TrimSpace(res.Response)
	return res
}

// parseOpencode concatenates text parts; the last step_finish event
// supplies token counts and cost.
func parseOpencode(events []gjson.Result) Result {
	var res Result
	var text strings.Builder
	for _, ev := range events {
		switch ev.Get("type").String() {
		case "text":
			text.WriteString(ev.Get("part.text").String())
		case "step_finish":
			res.Usage.InputTokens = int(ev.Get("tokens.input").Int())
			res.Usage.OutputTokens = int(ev.Get("tokens.output").Int())
			if cost := ev.Get("cost"); cost.Exists() {
				c := cost.Float()
				res.Usage.Cost = &c
			}
		}
	}
	res.Response = text.String()
	return res
}

// parseCodex reads the last-message file, dropping the boilerplate first
// line codex prepends on success.
func parseCodex(lastMessagePath string) Result {
	if lastMessagePath == "" {
		return Result{}
	}
	data, err := os.ReadFile(lastMessagePath)
	if err != nil {
		return Result{}
	}
	content := string(data)
	if first, rest, found := strings.Cut(content, "\n"); found && strings.TrimSpace(first) == "Task completed successfully." {
		content = rest
	} else if !found && strings.TrimSpace(content) == "Task completed successfully." {
		content = ""
	}
	return Result{Response: content}
}

// parseStream handles the stream-json dialect shared by claude, cursor,
// qwen, and droid: the result event carries the response and usage.
// cursor may put the response only on an assistant message; droid may use
// a completion event instead.
func parseStream(engine Engine, events []gjson.Result) Result {
	var res Result
	for _, ev := range events {
		switch ev.Get("type").String() {
		case "result":
			// The result event may omit the response (cursor does); keep
			// text already recovered from assistant/completion events.
			if r := ev.Get("result").String(); r != "" {
				res.Response = r
			}
			res.Usage.InputTokens = int(ev.Get("usage.input_tokens").Int())
			res.Usage.OutputTokens = int(ev.Get("usage.output_tokens").Int())
			if d := ev.Get("duration_ms"); d.Exists() {
				ms := d.Int()
				res.Usage.DurationMS = &ms
			}
		case "assistant":
			if engine == EngineCursor && res.Response == "" {
				for _, block := range ev.Get("message.content").Array() {
					if block.Get("type").String() == "text" {
						res.Response += block.Get("text").String()
					}
				}
			}
		case "completion":
			if engine == EngineDroid {
				if res.Response == "" {
					res.Response = ev.Get("finalText").String()
				}
				if d := ev.Get("durationMs"); d.Exists() && res.Usage.DurationMS == nil {
					ms := d.Int()
					res.Usage.DurationMS = &ms
				}
			}
		}
	}
	return res
}
