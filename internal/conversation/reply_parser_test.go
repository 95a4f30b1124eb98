package conversation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderReply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    ReplyKind
		speech  string
		note    string
	}{
		{name: "bare object", content: `{"speech_output": "hi"}`, kind: ReplyObject, speech: "hi"},
		{name: "json fence", content: "```json\n{\"speech_output\": \"hi\"}\n```", kind: ReplyObject, speech: "hi"},
		{name: "plain fence", content: "```\n{\"speech_output\": \"hi\"}\n```", kind: ReplyObject, speech: "hi"},
		{name: "prefix and suffix", content: `Sure thing: {"speech_output": "hi"} hope that helps`, kind: ReplyObject, speech: "hi"},
		{name: "prose", content: "  The patient looks pale.  ", kind: ReplyNonJSON, speech: "The patient looks pale.", note: noteNonJSON},
		{name: "broken object", content: `{"speech_output": "hi"`, kind: ReplyNonJSON, speech: `{"speech_output": "hi"`, note: noteNonJSON},
		{name: "json string", content: `"just words"`, kind: ReplyNonObject, speech: "just words", note: noteNonObject},
		{name: "json array", content: `[1, "two"]`, kind: ReplyNonObject, speech: `[1,"two"]`, note: noteNonObject},
		{name: "json number", content: `12.50`, kind: ReplyNonObject, speech: "12.50", note: noteNonObject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply := ParseProviderReply(tc.content)
			require.Equal(t, tc.kind, reply.Kind)

			d, _ := reply.Decide(nil)
			assert.Equal(t, tc.speech, d.SpeechOutput)
			assert.Empty(t, d.ActionTriggers)
			if tc.note != "" {
				assert.Equal(t, tc.note, d.UIUpdates["note"])
			} else {
				assert.NotContains(t, d.UIUpdates, "note")
			}
		})
	}
}

func TestParseProviderReplyNormalizesObjects(t *testing.T) {
	content := "```json\n" + `{
  "speech_output": "Here is the chest xray.",
  "action_triggers": [{"type": "resource_request", "resource": "chest_xray"}, {"type": "resource_request", "resource": "ecg"}],
  "ui_updates": {},
  "advance_patient_state": null,
  "update_vitals": null,
  "patient_voice": null,
  "hint": "Consider the airway."
}` + "\n```"

	d, report := ParseProviderReply(content).Decide([]string{"chest_xray", "ecg"})

	assert.Equal(t, []ActionTrigger{{Type: TriggerTypeResourceRequest, Resource: "chest_xray"}}, d.ActionTriggers)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, DropNotMentioned, report.Dropped[0].Reason)
	require.NotNil(t, d.Hint)
	assert.Equal(t, "Consider the airway.", *d.Hint)
	assert.Nil(t, d.UpdateVitals)
}

func TestValidateReply(t *testing.T) {
	ok := ParseProviderReply(`{"speech_output": "hi", "action_triggers": [], "ui_updates": {}}`)
	require.Equal(t, ReplyObject, ok.Kind)
	assert.NoError(t, ValidateReply(ok.Object))

	bad := ParseProviderReply(`{"speech_output": 3, "action_triggers": "ecg"}`)
	require.Equal(t, ReplyObject, bad.Kind)
	assert.Error(t, ValidateReply(bad.Object))
}

func TestProviderReplyRecoveryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	bareObject := func(speech string) string {
		data, _ := json.Marshal(map[string]any{"speech_output": speech})
		return string(data)
	}

	properties.Property("fenced payload recovers the bare decision", prop.ForAll(
		func(speech string) bool {
			bare, _ := ParseProviderReply(bareObject(speech)).Decide(nil)
			fenced, _ := ParseProviderReply("```json\n" + bareObject(speech) + "\n```").Decide(nil)
			return reflect.DeepEqual(bare, fenced)
		},
		gen.AnyString(),
	))

	properties.Property("object embedded in prose is extracted", prop.ForAll(
		func(prefix, speech, suffix string) bool {
			reply := ParseProviderReply(prefix + " " + bareObject(speech) + " " + suffix)
			d, _ := reply.Decide(nil)
			return reply.Kind == ReplyObject && d.SpeechOutput == strings.TrimSpace(speech)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("prose without braces degrades to its trimmed text", prop.ForAll(
		func(words string) bool {
			prose := "  Doctor " + words + "\n"
			d, _ := ParseProviderReply(prose).Decide([]string{"ecg"})
			return d.SpeechOutput == strings.TrimSpace(prose) &&
				len(d.ActionTriggers) == 0 &&
				d.UIUpdates["note"] == noteNonJSON
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
