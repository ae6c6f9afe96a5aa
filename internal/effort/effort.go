// Package effort implements the deterministic, pure effort estimator:
// content plus a handful of optional signals in, a ReasoningEffort plus
// full diagnostics out. The same inputs always produce the same output,
// which is what makes the estimator's behavior a testable property
// rather than a black box.
package effort

import (
	"regexp"
	"strings"

	"github.com/nugget/agentfabric/internal/envelope"
)

// Category is one of the fixed keyword categories the scorer matches
// against. Weights and keyword lists are package-level so the adaptive
// tuner (tuner.go) can propose bounded adjustments to them without
// changing the estimator's shape.
type Category string

const (
	CategoryAnalytical  Category = "analytical"
	CategoryComparative Category = "comparative"
	CategoryCreative    Category = "creative"
	CategoryComplex     Category = "complex"
)

// defaultWeights are the category weights from the algorithm reference.
var defaultWeights = map[Category]float64{
	CategoryAnalytical:  1.0,
	CategoryComparative: 1.5,
	CategoryCreative:    2.0,
	CategoryComplex:     2.5,
}

var keywordTable = map[Category][]string{
	CategoryAnalytical: {
		"analyze", "evaluate", "assess", "research", "investigate", "study",
		"examine", "review", "diagnose", "audit", "survey", "inspect",
	},
	CategoryComparative: {
		"compare", "contrast", "differentiate", "versus", "pros and cons",
		"trade-off", "benchmark", "measure against", "weigh", "rank",
	},
	CategoryCreative: {
		"design", "create", "optimize", "improve", "innovate", "develop",
		"build", "construct", "craft", "devise", "formulate", "invent",
	},
	CategoryComplex: {
		"hypothesize", "synthesize", "debate", "refactor", "architect",
		"theorize", "model", "simulate", "predict", "extrapolate",
		"integrate", "transform", "restructure",
	},
}

// singleWordPatterns anchors every single-word keyword to word boundaries
// so e.g. "model" doesn't match inside "models" or "modeling". Multi-word
// phrases ("pros and cons", "measure against") have no single-token
// boundary to anchor on, so they stay on substring matching.
var singleWordPatterns = buildSingleWordPatterns()

func buildSingleWordPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, keywords := range keywordTable {
		for _, kw := range keywords {
			if strings.Contains(kw, " ") {
				continue
			}
			if _, ok := patterns[kw]; ok {
				continue
			}
			patterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
	return patterns
}

func keywordCount(lower, kw string) int {
	if pat, ok := singleWordPatterns[kw]; ok {
		return len(pat.FindAllStringIndex(lower, -1))
	}
	return strings.Count(lower, kw)
}

// Signals carries the optional inputs the algorithm reference allows
// beyond content: the task's event/intent (if any), the confidence
// already assigned (if any), and deadline pressure in [0,1].
type Signals struct {
	Event            envelope.TaskEvent
	Intent           envelope.MessageIntent
	Confidence       float64
	HasConfidence    bool
	DeadlinePressure float64
}

// Diagnostics records every adjustment that fired during estimation, the
// per-category scores, the thresholds used, and the final effort — the
// full audit trail the testable-properties section requires.
type Diagnostics struct {
	WordCount        int
	CategoryScores   map[Category]float64
	CategoriesMatched int
	Score            float64
	ThresholdHigh    float64
	ThresholdMedium  float64
	BaseEffort       envelope.ReasoningEffort
	Adjustments      []string
	FinalEffort      envelope.ReasoningEffort
}

// Weights exposes the estimator's current (possibly tuned) weights, for
// Diagnostics consumers and for the tuner.
type Weights struct {
	Category map[Category]float64
}

// Estimator holds the (possibly tuned) category weights used by
// EffortOf. The zero value is ready to use with the reference defaults.
type Estimator struct {
	weights map[Category]float64
}

// New returns an Estimator seeded with the reference default weights.
func New() *Estimator {
	w := make(map[Category]float64, len(defaultWeights))
	for k, v := range defaultWeights {
		w[k] = v
	}
	return &Estimator{weights: w}
}

// EffortOf implements the algorithm reference, steps 1-10, exactly.
func (es *Estimator) EffortOf(content string, sig Signals) (envelope.ReasoningEffort, Diagnostics) {
	lower := strings.ToLower(content)
	words := strings.Fields(lower)
	w := len(words)

	scores := make(map[Category]float64, len(keywordTable))
	matched := 0
	for cat, keywords := range keywordTable {
		count := 0
		for _, kw := range keywords {
			count += keywordCount(lower, kw)
		}
		if count > 0 {
			matched++
		}
		scores[cat] = float64(count) * es.weight(cat)
	}

	s := 0.0
	for _, v := range scores {
		s += v
	}

	var adjustments []string
	if matched >= 3 {
		bonus := 0.5 * float64(matched-2)
		s += bonus
		adjustments = append(adjustments, "overlap_bonus")
	}

	tHigh := 50 - 5*s
	if tHigh < 10 {
		tHigh = 10
	}
	tMed := 20 - 2*s
	if tMed < 5 {
		tMed = 5
	}

	var effort envelope.ReasoningEffort
	switch {
	case s >= 3 || float64(w) > tHigh:
		effort = envelope.EffortHigh
	case s >= 1 || float64(w) > tMed:
		effort = envelope.EffortMedium
	default:
		effort = envelope.EffortLow
	}
	base := effort

	switch sig.Event {
	case envelope.EventRefine, envelope.EventEscalate, envelope.EventCritique, envelope.EventConclude:
		if effort != envelope.EffortHigh {
			effort = envelope.EffortHigh
			adjustments = append(adjustments, "event_high")
		}
	case envelope.EventPlan, envelope.EventExecute:
		if effort == envelope.EffortLow {
			effort = envelope.EffortMedium
			adjustments = append(adjustments, "event_medium")
		}
	}

	if sig.Intent == envelope.IntentModifyTask && effort != envelope.EffortHigh {
		effort = envelope.EffortHigh
		adjustments = append(adjustments, "intent_modify_task")
	}

	if sig.HasConfidence && sig.Confidence < 0.7 {
		if bumped, ok := bumpOne(effort); ok {
			effort = bumped
			adjustments = append(adjustments, "low_confidence")
		}
	}

	if sig.DeadlinePressure > 0.8 && effort != envelope.EffortHigh {
		effort = envelope.EffortHigh
		adjustments = append(adjustments, "deadline_pressure")
	}

	if scores[CategoryComplex] > 0 && effort == envelope.EffortLow {
		effort = envelope.EffortMedium
		adjustments = append(adjustments, "complex_guardrail")
	}

	return effort, Diagnostics{
		WordCount:         w,
		CategoryScores:    scores,
		CategoriesMatched: matched,
		Score:             s,
		ThresholdHigh:     tHigh,
		ThresholdMedium:   tMed,
		BaseEffort:        base,
		Adjustments:       adjustments,
		FinalEffort:       effort,
	}
}

func (es *Estimator) weight(cat Category) float64 {
	if w, ok := es.weights[cat]; ok {
		return w
	}
	return defaultWeights[cat]
}

func bumpOne(e envelope.ReasoningEffort) (envelope.ReasoningEffort, bool) {
	switch e {
	case envelope.EffortLow:
		return envelope.EffortMedium, true
	case envelope.EffortMedium:
		return envelope.EffortHigh, true
	default:
		return e, false
	}
}
