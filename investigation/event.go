// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import "encoding/json"

// PhaseKey identifies one stage of the fixed identification pipeline.
type PhaseKey string

// The six pipeline phases, in execution order.
const (
	PhaseUploadAndParse     PhaseKey = "upload_and_parse"
	PhaseReverseImageSearch PhaseKey = "reverse_image_search"
	PhaseTigerDetection     PhaseKey = "tiger_detection"
	PhaseStripeAnalysis     PhaseKey = "stripe_analysis"
	PhaseReportGeneration   PhaseKey = "report_generation"
	PhaseComplete           PhaseKey = "complete"
)

// PhaseOrder lists the pipeline phases in execution order. The phase
// tracker's notion of "current phase" and the completion percentage
// both derive from this ordering.
var PhaseOrder = [...]PhaseKey{
	PhaseUploadAndParse,
	PhaseReverseImageSearch,
	PhaseTigerDetection,
	PhaseStripeAnalysis,
	PhaseReportGeneration,
	PhaseComplete,
}

// knownPhase reports whether key names one of the six pipeline phases.
func knownPhase(key PhaseKey) bool {
	for _, candidate := range PhaseOrder {
		if candidate == key {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a phase or an ensemble model.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// knownStatus reports whether s is one of the four lifecycle states.
func knownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// envelope is the wire form of every inbound stream frame: a type tag
// and a kind-specific payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope type tags accepted from the stream. Anything else is
// dropped by Normalize.
const (
	typePhaseEvent          = "phase_event"
	typeModelEvent          = "model_event"
	typeAgentUpdate         = "agent_update"
	typeInvestigationUpdate = "investigation_update"
)

// Event is one normalized inbound event. The set of implementations
// is closed: PhaseEvent, ModelEvent, AgentUpdate, and
// InvestigationUpdate. The engine switches exhaustively over these;
// unknown wire types never produce an Event.
type Event interface {
	// sealed prevents implementations outside this package, keeping
	// the variant set closed.
	sealed()
}

// PhaseEvent reports a phase status change.
type PhaseEvent struct {
	Phase  PhaseKey
	Status Status

	// Timestamp is the backend's event time in Unix seconds
	// (fractional). Ordering and stale-discard decisions use this
	// value, never arrival order.
	Timestamp float64

	// Data carries phase-specific counters (pages parsed, candidate
	// matches, and so on). May be nil.
	Data map[string]any
}

func (PhaseEvent) sealed() {}

// ModelEvent reports progress of one ensemble model.
type ModelEvent struct {
	Model  string
	Status Status

	// Progress is the raw reported progress. The tracker clamps it
	// into [0,100]; the wire value is preserved here.
	Progress float64

	// Timestamp is the backend's event time in Unix seconds, or zero
	// when the frame carried none (the tracker stamps arrival time).
	Timestamp float64

	// Score is the model's similarity score in [0,1], when reported.
	Score *float64

	// Embeddings is the embedding count, when reported.
	Embeddings *int

	// ProcessingTime is the backend-reported wall time in seconds,
	// when present.
	ProcessingTime *float64

	// ErrorMessage accompanies StatusError.
	ErrorMessage string
}

func (ModelEvent) sealed() {}

// AgentUpdate is a coarse liveness/progress report from a backend
// agent. It feeds the activity log only; it does not drive phase or
// model state.
type AgentUpdate struct {
	AgentType   string
	Status      string
	CurrentTask string
	Progress    *float64
	LastUpdate  float64
}

func (AgentUpdate) sealed() {}

// InvestigationUpdate is an opaque trigger telling the dashboard to
// refresh the investigation snapshot out of band. The payload is
// passed through undecoded.
type InvestigationUpdate struct {
	Data json.RawMessage
}

func (InvestigationUpdate) sealed() {}

// Wire payload shapes. Pointer fields distinguish "absent" from zero
// values during validation.
type phaseEventData struct {
	Phase     *PhaseKey      `json:"phase"`
	Status    *Status        `json:"status"`
	Timestamp *float64       `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

type modelEventData struct {
	Model          *string  `json:"model"`
	Status         *Status  `json:"status"`
	Progress       *float64 `json:"progress"`
	Timestamp      *float64 `json:"timestamp"`
	Score          *float64 `json:"score"`
	Embeddings     *int     `json:"embeddings"`
	ProcessingTime *float64 `json:"processing_time"`
	ErrorMessage   string   `json:"error_message"`
}

type agentUpdateData struct {
	AgentType   *string  `json:"agent_type"`
	Status      *string  `json:"status"`
	CurrentTask string   `json:"current_task"`
	Progress    *float64 `json:"progress"`
	LastUpdate  *float64 `json:"last_update"`
}

// Normalize parses one raw stream frame into a typed event. It
// returns (nil, false) for anything that cannot be applied: invalid
// JSON, an unknown type tag, an unknown phase key or status, or a
// payload missing required fields. Malformed input never produces an
// error or a panic — the stream must survive any bytes the transport
// delivers.
func Normalize(raw []byte) (Event, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	switch env.Type {
	case typePhaseEvent:
		var data phaseEventData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, false
		}
		if data.Phase == nil || data.Status == nil || data.Timestamp == nil {
			return nil, false
		}
		if !knownPhase(*data.Phase) || !knownStatus(*data.Status) {
			return nil, false
		}
		return PhaseEvent{
			Phase:     *data.Phase,
			Status:    *data.Status,
			Timestamp: *data.Timestamp,
			Data:      data.Data,
		}, true

	case typeModelEvent:
		var data modelEventData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, false
		}
		if data.Model == nil || *data.Model == "" || data.Status == nil || data.Progress == nil {
			return nil, false
		}
		if !knownStatus(*data.Status) {
			return nil, false
		}
		event := ModelEvent{
			Model:          *data.Model,
			Status:         *data.Status,
			Progress:       *data.Progress,
			Score:          data.Score,
			Embeddings:     data.Embeddings,
			ProcessingTime: data.ProcessingTime,
			ErrorMessage:   data.ErrorMessage,
		}
		if data.Timestamp != nil {
			event.Timestamp = *data.Timestamp
		}
		return event, true

	case typeAgentUpdate:
		var data agentUpdateData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, false
		}
		if data.AgentType == nil || *data.AgentType == "" || data.Status == nil || data.LastUpdate == nil {
			return nil, false
		}
		return AgentUpdate{
			AgentType:   *data.AgentType,
			Status:      *data.Status,
			CurrentTask: data.CurrentTask,
			Progress:    data.Progress,
			LastUpdate:  *data.LastUpdate,
		}, true

	case typeInvestigationUpdate:
		return InvestigationUpdate{Data: env.Data}, true

	default:
		return nil, false
	}
}
