// Package stream decodes the newline-delimited JSON events emitted by the
// agent CLI in stream-json mode.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyLine is returned by Parse for blank input.
var ErrEmptyLine = errors.New("stream: empty line")

// ParseError reports a line that is not valid JSON.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stream: invalid JSON line: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// fields is a decoded JSON object whose values are interpreted on demand.
// A value of an unexpected type reads as its zero value.
type fields map[string]json.RawMessage

func object(raw json.RawMessage) fields {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f
}

func (f fields) str(key string) string {
	var s string
	if err := json.Unmarshal(f[key], &s); err != nil {
		return ""
	}
	return s
}

func (f fields) int(key string) int {
	var n float64
	if err := json.Unmarshal(f[key], &n); err != nil {
		return 0
	}
	return int(n)
}

func (f fields) float(key string) *float64 {
	var n *float64
	if err := json.Unmarshal(f[key], &n); err != nil {
		return nil
	}
	return n
}

// unknownType is reported for events whose type is missing or not a string.
const unknownType = "unknown"

// Parse decodes a single stream line into an Event.
//
// Fields are read one at a time: missing or oddly typed fields decode to
// their zero values and unrecognised event types are returned as
// UnknownEvent, so only blank input and malformed JSON produce errors.
func Parse(line string) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyLine
	}

	var f fields
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, &ParseError{Line: line, Err: err}
		}
		// Valid JSON that is not an object.
		f = nil
	}
	typ := f.str("type")
	if typ == "" {
		typ = unknownType
	}

	switch typ {
	case "init", "system":
		return InitEvent{SessionID: f.str("session_id")}, nil
	case "assistant":
		raw := f["content"]
		if c := object(f["message"])["content"]; len(c) > 0 {
			raw = c
		}
		return AssistantEvent{Content: parseBlocks(raw)}, nil
	case "tool_use":
		return ToolUseEvent{ID: f.str("id"), Name: f.str("name"), Input: f["input"]}, nil
	case "tool_result":
		id := f.str("tool_use_id")
		if id == "" {
			id = f.str("id")
		}
		return ToolResultEvent{ToolUseID: id, Content: flattenContent(f["content"])}, nil
	case "result":
		return ResultEvent{
			SessionID:    f.str("session_id"),
			Usage:        parseUsage(f["usage"]),
			TotalCostUSD: f.float("total_cost_usd"),
		}, nil
	default:
		return UnknownEvent{EventType: typ, Raw: json.RawMessage(line)}, nil
	}
}

func parseUsage(raw json.RawMessage) TokenUsage {
	u := object(raw)
	return TokenUsage{
		InputTokens:              u.int("input_tokens"),
		OutputTokens:             u.int("output_tokens"),
		CacheCreationInputTokens: u.int("cache_creation_input_tokens"),
		CacheReadInputTokens:     u.int("cache_read_input_tokens"),
	}
}

// parseBlocks decodes content blocks leniently; a block that is not an
// object becomes BlockOther instead of failing the whole event.
func parseBlocks(raw json.RawMessage) []ContentBlock {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	blocks := make([]ContentBlock, 0, len(items))
	for _, item := range items {
		b := object(item)
		switch {
		case b == nil:
			blocks = append(blocks, ContentBlock{Kind: BlockOther})
		case b.str("type") == "text":
			blocks = append(blocks, ContentBlock{Kind: BlockText, Text: b.str("text")})
		case b.str("type") == "tool_use":
			blocks = append(blocks, ContentBlock{Kind: BlockToolUse, ID: b.str("id"), Name: b.str("name"), Input: b["input"]})
		default:
			blocks = append(blocks, ContentBlock{Kind: BlockOther})
		}
	}
	return blocks
}

// flattenContent accepts either a plain string or an array of text blocks.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []string
	for _, b := range parseBlocks(raw) {
		if b.Kind == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractText returns the newline-joined text blocks of an assistant event.
// It reports false for other events and for assistant events with no text.
func ExtractText(ev Event) (string, bool) {
	a, ok := ev.(AssistantEvent)
	if !ok {
		return "", false
	}
	var parts []string
	for _, b := range a.Content {
		if b.Kind == BlockText {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
