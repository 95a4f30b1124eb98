package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ReplyKind tags how a provider reply was read.
type ReplyKind int

const (
	// ReplyObject is a JSON object, possibly recovered from fences or prose.
	ReplyObject ReplyKind = iota
	// ReplyNonJSON is text that held no parseable JSON.
	ReplyNonJSON
	// ReplyNonObject is valid JSON that is not an object.
	ReplyNonObject
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyObject:
		return "object"
	case ReplyNonJSON:
		return "non_json"
	case ReplyNonObject:
		return "non_object"
	default:
		return "unknown"
	}
}

const (
	noteNonJSON   = "Model returned non-JSON response; using raw text only."
	noteNonObject = "Model returned non-object JSON; using stringified content."
)

// ProviderReply is a provider's text reply read as either an object or malformed content.
type ProviderReply struct {
	Kind ReplyKind
	// Object is set when Kind is ReplyObject.
	Object map[string]any
	// Text is the speech used for degraded replies.
	Text string
}

// Decide converts the reply into a Decision. Objects go through the
// normalizer; malformed replies become a degraded decision with a ui note.
func (r ProviderReply) Decide(available []string) (Decision, NormalizationReport) {
	switch r.Kind {
	case ReplyObject:
		return NormalizeDecisionWithReport(r.Object, available)
	case ReplyNonObject:
		return degradedDecision(r.Text, noteNonObject), NormalizationReport{}
	default:
		return degradedDecision(r.Text, noteNonJSON), NormalizationReport{}
	}
}

// ParseProviderReply recovers a JSON object from provider text. It never fails.
func ParseProviderReply(content string) ProviderReply {
	candidate := extractJSONBlock(content)
	value, err := decodeJSON(candidate)
	if err != nil {
		return ProviderReply{Kind: ReplyNonJSON, Text: strings.TrimSpace(content)}
	}
	obj, ok := value.(map[string]any)
	if !ok || obj == nil {
		return ProviderReply{Kind: ReplyNonObject, Text: stringify(value)}
	}
	return ProviderReply{Kind: ReplyObject, Object: obj}
}

// extractJSONBlock strips a surrounding code fence and, when the remainder is
// not valid JSON, narrows it to the span from the first '{' to the last '}'.
func extractJSONBlock(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasPrefix(last, "```") {
				lines = lines[:len(lines)-1]
			}
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if _, err := decodeJSON(text); err == nil {
		return text
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// decodeJSON parses a single JSON value, keeping numbers as json.Number.
func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("conversation: trailing data after JSON value")
	}
	return v, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
