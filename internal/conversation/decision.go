package conversation

import "encoding/json"

// TriggerTypeResourceRequest is the only action trigger type the simulation honours.
const TriggerTypeResourceRequest = "resource_request"

// ActionTrigger asks the frontend to unlock a case resource.
type ActionTrigger struct {
	Type     string `json:"type"`
	Resource string `json:"resource"`
}

// VitalsTransition moves the patient into a roadmap state.
type VitalsTransition struct {
	NextStateID       string `json:"next_state_id"`
	QualitativeChange string `json:"qualitative_change"`
	Reason            string `json:"reason"`
}

// Decision is the validated output of one reasoning turn.
//
// UpdateVitals is nil when the vitals do not change.
type Decision struct {
	SpeechOutput        string            `json:"speech_output"`
	ActionTriggers      []ActionTrigger   `json:"action_triggers"`
	UIUpdates           map[string]any    `json:"ui_updates"`
	AdvancePatientState *string           `json:"advance_patient_state"`
	UpdateVitals        *VitalsTransition `json:"update_vitals"`
	PatientVoice        *string           `json:"patient_voice"`
	Hint                *string           `json:"hint"`
}

// MarshalJSON keeps action_triggers and ui_updates as [] and {} when empty.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	out := plain(d)
	if out.ActionTriggers == nil {
		out.ActionTriggers = []ActionTrigger{}
	}
	if out.UIUpdates == nil {
		out.UIUpdates = map[string]any{}
	}
	return json.Marshal(out)
}

// degradedDecision is returned when the provider reply could not be read as an object.
func degradedDecision(speech, note string) Decision {
	return Decision{
		SpeechOutput:   speech,
		ActionTriggers: []ActionTrigger{},
		UIUpdates:      map[string]any{"note": note},
	}
}
