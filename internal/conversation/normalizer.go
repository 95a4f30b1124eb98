package conversation

import "strings"

// Reasons an action trigger is removed during normalization.
const (
	DropMalformed       = "malformed"
	DropWrongType       = "wrong_type"
	DropMissingResource = "missing_resource"
	DropUnknownResource = "unknown_resource"
	DropNotMentioned    = "not_mentioned"
)

// DroppedTrigger records a trigger the normalizer refused and why.
type DroppedTrigger struct {
	Index    int
	Resource string
	Reason   string
}

// NormalizationReport describes what normalization removed.
type NormalizationReport struct {
	Dropped []DroppedTrigger
}

// NormalizeDecision turns an untrusted provider object into a Decision whose
// triggers only name available resources that the speech line mentions.
func NormalizeDecision(raw map[string]any, available []string) Decision {
	d, _ := NormalizeDecisionWithReport(raw, available)
	return d
}

// NormalizeDecisionWithReport is NormalizeDecision plus the list of dropped triggers.
func NormalizeDecisionWithReport(raw map[string]any, available []string) (Decision, NormalizationReport) {
	var report NormalizationReport

	speech, _ := raw["speech_output"].(string)
	speech = strings.TrimSpace(speech)

	ui, ok := raw["ui_updates"].(map[string]any)
	if !ok || ui == nil {
		ui = map[string]any{}
	}

	allowed := make(map[string]struct{}, len(available))
	for _, id := range available {
		allowed[id] = struct{}{}
	}

	triggers := []ActionTrigger{}
	candidates, _ := raw["action_triggers"].([]any)
	lowered := strings.ToLower(speech)
	for idx, candidate := range candidates {
		resource, reason := checkTrigger(candidate, allowed, lowered)
		if reason != "" {
			report.Dropped = append(report.Dropped, DroppedTrigger{Index: idx, Resource: resource, Reason: reason})
			continue
		}
		triggers = append(triggers, ActionTrigger{Type: TriggerTypeResourceRequest, Resource: resource})
	}

	return Decision{
		SpeechOutput:        speech,
		ActionTriggers:      triggers,
		UIUpdates:           ui,
		AdvancePatientState: optionalString(raw["advance_patient_state"]),
		UpdateVitals:        vitalsTransition(raw["update_vitals"]),
		PatientVoice:        optionalString(raw["patient_voice"]),
		Hint:                optionalString(raw["hint"]),
	}, report
}

// checkTrigger returns the trigger's resource and, when it must be dropped, the reason.
func checkTrigger(candidate any, allowed map[string]struct{}, loweredSpeech string) (string, string) {
	item, ok := candidate.(map[string]any)
	if !ok || len(item) != 2 {
		return "", DropMalformed
	}
	resource, _ := item["resource"].(string)
	resource = strings.TrimSpace(resource)
	if t, _ := item["type"].(string); t != TriggerTypeResourceRequest {
		return resource, DropWrongType
	}
	if resource == "" {
		return "", DropMissingResource
	}
	if _, ok := allowed[resource]; !ok {
		return resource, DropUnknownResource
	}
	if !mentionsResource(loweredSpeech, resource) {
		return resource, DropNotMentioned
	}
	return resource, ""
}

// mentionsResource reports whether the lower-cased speech contains the
// resource id or its underscore-to-space form. Hyphenated spellings such as
// "chest x-ray" for chest_xray do not match.
func mentionsResource(loweredSpeech, resource string) bool {
	id := strings.ToLower(resource)
	if strings.Contains(loweredSpeech, id) {
		return true
	}
	return strings.Contains(loweredSpeech, strings.ReplaceAll(id, "_", " "))
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func vitalsTransition(v any) *VitalsTransition {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	next, _ := m["next_state_id"].(string)
	change, _ := m["qualitative_change"].(string)
	reason, _ := m["reason"].(string)
	return &VitalsTransition{NextStateID: next, QualitativeChange: change, Reason: reason}
}
