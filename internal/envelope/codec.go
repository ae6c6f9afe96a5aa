package envelope

import (
	"encoding/json"
	"fmt"
)

// peek is the superset of fields Decode needs to inspect before committing
// to a concrete type. All enum fields use the validating types above, so
// an unknown enum value fails here with decode_error.unknown_enum before
// any type-specific decode is attempted.
type peek struct {
	Type    Variant       `json:"type"`
	Intent  MessageIntent `json:"intent"`
	Event   *TaskEvent    `json:"event"`
	Outcome *TaskOutcome  `json:"outcome"`
}

// Decode parses data into the concrete envelope variant its discriminator
// fields select, per the following policy:
//
//   - intent == start_task                        -> Task
//   - intent == modify_task                       -> TaskResult, falling
//     back to Task if no "outcome" field is present
//   - intent == tool_response                      -> TaskResult
//   - intent in {chat, system, orchestration}      -> Message
//   - intent == check_status                       -> Task if an "event"
//     field is present, else Message
//   - intent in {heartbeat, tool_request,
//     generate_workflow}                           -> TaskResult if an
//     "outcome" field is present, else Task if an "event" field is
//     present, else Message
//   - explicit "type" field present                -> decode that variant
//     directly, overriding the intent-based inference above
//   - anything else                                -> Message
//
// There is no trial-and-error across target types: the discriminator
// fields are read once (via peek) and used to pick exactly one decode
// path.
func Decode(data []byte) (Envelope, error) {
	var p peek
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, wrapUnmarshalErr(err)
	}

	if p.Type != "" {
		return decodeVariant(p.Type, data)
	}

	switch p.Intent {
	case IntentStartTask:
		return decodeTask(data)
	case IntentModifyTask:
		if p.Outcome != nil {
			return decodeTaskResult(data)
		}
		return decodeTask(data)
	case IntentToolResponse:
		return decodeTaskResult(data)
	case IntentCheckStatus:
		if p.Event != nil {
			return decodeTask(data)
		}
		return decodeMessage(data)
	case IntentChat, IntentSystem, IntentOrchestration:
		return decodeMessage(data)
	case IntentHeartbeat, IntentToolRequest, IntentGenerateWorkflow:
		if p.Outcome != nil {
			return decodeTaskResult(data)
		}
		if p.Event != nil {
			return decodeTask(data)
		}
		return decodeMessage(data)
	default:
		return decodeMessage(data)
	}
}

func decodeVariant(v Variant, data []byte) (Envelope, error) {
	switch v {
	case VariantMessage:
		return decodeMessage(data)
	case VariantTask:
		return decodeTask(data)
	case VariantTaskResult:
		return decodeTaskResult(data)
	case VariantStreamUpdate:
		return decodeStreamUpdate(data)
	case VariantWS:
		return decodeWS(data)
	default:
		return nil, unknownEnum("type", string(v))
	}
}

func decodeMessage(data []byte) (Envelope, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, schemaMismatch("message", string(data), err)
	}
	m.Type = VariantMessage
	return m, nil
}

func decodeTask(data []byte) (Envelope, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, schemaMismatch("task", string(data), err)
	}
	if t.Event == "" {
		return nil, schemaMismatch("event", "", fmt.Errorf("required for a task envelope"))
	}
	t.Type = VariantTask
	return t, nil
}

func decodeTaskResult(data []byte) (Envelope, error) {
	var r TaskResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, schemaMismatch("task_result", string(data), err)
	}
	if r.Outcome == "" {
		return nil, schemaMismatch("outcome", "", fmt.Errorf("required for a task_result envelope"))
	}
	r.Type = VariantTaskResult
	return r, nil
}

func decodeStreamUpdate(data []byte) (Envelope, error) {
	var s StreamUpdate
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, schemaMismatch("stream_update", string(data), err)
	}
	s.Type = VariantStreamUpdate
	return s, nil
}

func decodeWS(data []byte) (Envelope, error) {
	var w WSEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, schemaMismatch("ws_envelope", string(data), err)
	}
	w.Type = VariantWS
	return w, nil
}

// Encode serializes any concrete envelope variant to its wire form.
func Encode(e Envelope) ([]byte, error) {
	switch v := e.(type) {
	case Message:
		v.Type = VariantMessage
		return json.Marshal(v)
	case Task:
		v.Type = VariantTask
		v.Confidence = clampConfidence(v.Confidence)
		return json.Marshal(v)
	case TaskResult:
		v.Type = VariantTaskResult
		v.Confidence = clampConfidence(v.Confidence)
		return json.Marshal(v)
	case StreamUpdate:
		v.Type = VariantStreamUpdate
		return json.Marshal(v)
	case WSEnvelope:
		v.Type = VariantWS
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("envelope: encode: unsupported type %T", e)
	}
}

// Classify peeks an encoded envelope's variant tag without fully decoding
// it, for callers that only need to route on shape (the gateway's
// outbound classifier uses the decoded Envelope directly; this is for
// lower-level dispatch such as bus subscribers sharding by variant).
func Classify(data []byte) (Variant, error) {
	var p peek
	if err := json.Unmarshal(data, &p); err != nil {
		return "", wrapUnmarshalErr(err)
	}
	if p.Type != "" {
		return p.Type, nil
	}
	e, err := Decode(data)
	if err != nil {
		return "", err
	}
	return e.Variant(), nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func wrapUnmarshalErr(err error) error {
	if de, ok := err.(*DecodeError); ok {
		return de
	}
	return schemaMismatch("envelope", "", err)
}
