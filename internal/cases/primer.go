package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// PatientProfile holds the optional patient attributes of a case.
type PatientProfile struct {
	Name           *string `json:"name"`
	Age            *string `json:"age"`
	Sex            *string `json:"sex"`
	ChiefComplaint *string `json:"chief_complaint"`
	History        *string `json:"history"`
	Medications    *string `json:"medications"`
	Allergies      *string `json:"allergies"`
	SocialHistory  *string `json:"social_history"`
}

// RoadmapState is one authored vitals snapshot.
type RoadmapState struct {
	StateID string         `json:"state_id"`
	Vitals  map[string]any `json:"vitals"`
}

// StateRoadmap is the ordered progression a case can move through.
type StateRoadmap struct {
	CurrentStateID string         `json:"current_state_id"`
	States         []RoadmapState `json:"states"`
}

// Primer is the normalized case context handed to the reasoning step.
type Primer struct {
	CaseID             string         `json:"case_id"`
	Patient            PatientProfile `json:"patient"`
	StateRoadmap       StateRoadmap   `json:"state_roadmap"`
	AvailableResources []string       `json:"available_resources"`
	// Fallback is set when the case could not be resolved and stub data was used.
	Fallback bool `json:"-"`
}

// HasState reports whether the roadmap contains the given state id.
func (p Primer) HasState(stateID string) bool {
	for _, st := range p.StateRoadmap.States {
		if st.StateID == stateID {
			return true
		}
	}
	return false
}

const demographicsPrefix = "Patient_Demographics_and_Clinical_Data_"

type vitalsSlot struct {
	stateID string
	column  string
}

// vitalsSlots is scanned in order; the first populated slot is the current state.
var vitalsSlots = []vitalsSlot{
	{"initial", "Monitor_Vital_Signs_Initial_Vitals"},
	{"state1", "Monitor_Vital_Signs_State1_Vitals"},
	{"state2", "Monitor_Vital_Signs_State2_Vitals"},
	{"state3", "Monitor_Vital_Signs_State3_Vitals"},
	{"state4", "Monitor_Vital_Signs_State4_Vitals"},
	{"state5", "Monitor_Vital_Signs_State5_Vitals"},
	{"final", "Monitor_Vital_Signs_Final_Vitals"},
}

// CaseReader is the read side of the case store used to build primers.
type CaseReader interface {
	GetCase(ctx context.Context, caseID string) (*Case, error)
	ListResources(ctx context.Context, caseID string) ([]Resource, error)
}

// PrimerBuilder turns stored case records into primers.
type PrimerBuilder struct {
	store  CaseReader
	logger *logging.Logger
}

func NewPrimerBuilder(store CaseReader, logger *logging.Logger) *PrimerBuilder {
	if logger == nil {
		logger = logging.Default()
	}
	return &PrimerBuilder{store: store, logger: logger}
}

// Build returns the primer for caseID. Unknown cases yield the fallback primer
// rather than an error; only store transport failures are returned.
func (b *PrimerBuilder) Build(ctx context.Context, caseID string) (Primer, error) {
	caseID = strings.TrimSpace(caseID)
	if b == nil || b.store == nil {
		return FallbackPrimer(caseID), nil
	}
	c, err := b.store.GetCase(ctx, caseID)
	if errors.Is(err, ErrCaseNotFound) {
		b.logger.Warn("case not found; using fallback primer", "case_id", caseID)
		return FallbackPrimer(caseID), nil
	}
	if err != nil {
		return Primer{}, fmt.Errorf("cases: build primer: %w", err)
	}
	resources, err := b.store.ListResources(ctx, caseID)
	if err != nil {
		return Primer{}, fmt.Errorf("cases: build primer: %w", err)
	}
	primer := BuildPrimer(c, resources)
	b.logger.Debug("primer built",
		"case_id", caseID,
		"states", len(primer.StateRoadmap.States),
		"resources", len(primer.AvailableResources),
	)
	return primer, nil
}

// BuildPrimer derives a primer from a case row and its resources.
func BuildPrimer(c *Case, resources []Resource) Primer {
	if c == nil {
		return FallbackPrimer("")
	}
	row := c.RawRow
	primer := Primer{
		CaseID: c.CaseID,
		Patient: PatientProfile{
			Name:           rowText(row, "Patient_Name"),
			Age:            rowText(row, "Age"),
			Sex:            rowText(row, "Gender", "Sex"),
			ChiefComplaint: rowText(row, "Chief_Complaint", "Presenting_Complaint"),
			History:        rowText(row, "History_of_Present_Illness", "Past_Medical_History"),
			Medications:    rowText(row, "Current_Medications", "Medications"),
			Allergies:      rowText(row, "Allergies"),
			SocialHistory:  rowText(row, "Social_History"),
		},
		StateRoadmap:       buildRoadmap(row),
		AvailableResources: resourceIDs(resources),
	}
	return primer
}

// FallbackPrimer is the stub context used when a case cannot be resolved.
func FallbackPrimer(caseID string) Primer {
	age, sex, complaint := "45", "unknown", "undifferentiated chest pain"
	return Primer{
		CaseID: caseID,
		Patient: PatientProfile{
			Age:            &age,
			Sex:            &sex,
			ChiefComplaint: &complaint,
		},
		StateRoadmap:       StateRoadmap{States: []RoadmapState{}},
		AvailableResources: []string{},
		Fallback:           true,
	}
}

func buildRoadmap(row map[string]any) StateRoadmap {
	roadmap := StateRoadmap{States: []RoadmapState{}}
	for _, slot := range vitalsSlots {
		vitals, ok := parseVitals(row[slot.column])
		if !ok {
			continue
		}
		roadmap.States = append(roadmap.States, RoadmapState{StateID: slot.stateID, Vitals: vitals})
	}
	if len(roadmap.States) > 0 {
		roadmap.CurrentStateID = roadmap.States[0].StateID
	}
	return roadmap
}

// parseVitals accepts a mapping or a string holding a JSON-encoded mapping.
func parseVitals(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") {
			return nil, false
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil || out == nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

// rowText returns the first non-blank demographics column among names.
func rowText(row map[string]any, names ...string) *string {
	for _, name := range names {
		if s, ok := scalarText(row[demographicsPrefix+name]); ok {
			return &s
		}
	}
	return nil
}

func scalarText(value any) (string, bool) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func resourceIDs(resources []Resource) []string {
	out := make([]string, 0, len(resources))
	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		id := strings.TrimSpace(r.ResourceID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
