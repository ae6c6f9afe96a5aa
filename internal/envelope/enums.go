package envelope

import "encoding/json"

// Each enum below rejects unknown values at unmarshal time rather than
// silently accepting arbitrary strings, per the decode_error.unknown_enum
// taxonomy entry.

func (i MessageIntent) MarshalJSON() ([]byte, error) { return marshalEnum(string(i)) }

func (i *MessageIntent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("intent", string(data), err)
	}
	if !validIntents[MessageIntent(s)] {
		return unknownEnum("intent", s)
	}
	*i = MessageIntent(s)
	return nil
}

func (e TaskEvent) MarshalJSON() ([]byte, error) { return marshalEnum(string(e)) }

func (e *TaskEvent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("event", string(data), err)
	}
	if !validEvents[TaskEvent(s)] {
		return unknownEnum("event", s)
	}
	*e = TaskEvent(s)
	return nil
}

func (o TaskOutcome) MarshalJSON() ([]byte, error) { return marshalEnum(string(o)) }

func (o *TaskOutcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("outcome", string(data), err)
	}
	if !validOutcomes[TaskOutcome(s)] {
		return unknownEnum("outcome", s)
	}
	*o = TaskOutcome(s)
	return nil
}

func (r ReasoningEffort) MarshalJSON() ([]byte, error) { return marshalEnum(string(r)) }

func (r *ReasoningEffort) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("reasoning_effort", string(data), err)
	}
	if s == "" {
		*r = ""
		return nil
	}
	if !validEfforts[ReasoningEffort(s)] {
		return unknownEnum("reasoning_effort", s)
	}
	*r = ReasoningEffort(s)
	return nil
}

func (r ReasoningStrategy) MarshalJSON() ([]byte, error) { return marshalEnum(string(r)) }

func (r *ReasoningStrategy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("reasoning_strategy", string(data), err)
	}
	switch ReasoningStrategy(s) {
	case "", StrategyDirectAnswer, StrategyChainOfThought, StrategyChainOfDraft:
		*r = ReasoningStrategy(s)
		return nil
	default:
		return unknownEnum("reasoning_strategy", s)
	}
}

func (v Variant) MarshalJSON() ([]byte, error) { return marshalEnum(string(v)) }

func (v *Variant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return schemaMismatch("type", string(data), err)
	}
	switch Variant(s) {
	case VariantMessage, VariantTask, VariantTaskResult, VariantStreamUpdate, VariantWS:
		*v = Variant(s)
		return nil
	default:
		return unknownEnum("type", s)
	}
}
