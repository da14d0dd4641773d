package threats

import (
	"context"
	"fmt"

	"github.com/threatcanvas/sdk/pkg/shared/logging"
	"github.com/threatcanvas/sdk/pkg/shared/fingerprint"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// Engine applies a rule catalog to a model.
type Engine struct {
	rules  []Rule
	logger logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the built-in catalog.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine with the built-in catalog.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:  DefaultRules(),
		logger: &logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the catalog the engine evaluates.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate runs every rule against the model and returns the findings in a
// deterministic order: rules in catalog order, entities in declaration
// order. The model is not mutated.
func (e *Engine) Evaluate(ctx context.Context, m *tm.Model) ([]Finding, error) {
	if m == nil {
		return nil, fmt.Errorf("evaluate: model is nil")
	}

	var findings []Finding
	for _, rule := range e.rules {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		findings = append(findings, e.applyRule(m, rule)...)
	}

	e.logger.Info("evaluated %d rules against model %q: %d findings",
		len(e.rules), m.Name, len(findings))
	return findings, nil
}

func (e *Engine) applyRule(m *tm.Model, rule Rule) []Finding {
	var findings []Finding

	switch {
	case rule.MatchElement != nil:
		for _, el := range m.Elements() {
			if !rule.MatchElement(m, el) {
				continue
			}
			e.logger.Debug("rule %s matched element %q", rule.SID, el.Name)
			findings = append(findings, Finding{
				RuleID:      rule.SID,
				Summary:     rule.Description,
				Details:     rule.Details,
				Severity:    rule.Severity,
				Mitigations: rule.Mitigations,
				Model:       m.Name,
				TargetKind:  fingerprint.KindElement,
				Target:      el.Name,
				Fingerprint: fingerprint.GenerateElement(m.Name, rule.SID, el.Name),
			})
		}

	case rule.MatchDataflow != nil:
		for _, f := range m.Flows() {
			if !rule.MatchDataflow(m, f) {
				continue
			}
			src, sink := endpointNames(f)
			e.logger.Debug("rule %s matched dataflow %q", rule.SID, f.Name)
			findings = append(findings, Finding{
				RuleID:      rule.SID,
				Summary:     rule.Description,
				Details:     rule.Details,
				Severity:    rule.Severity,
				Mitigations: rule.Mitigations,
				Model:       m.Name,
				TargetKind:  fingerprint.KindDataflow,
				Target:      f.Name,
				Source:      src,
				Sink:        sink,
				Fingerprint: fingerprint.GenerateDataflow(m.Name, rule.SID, src, sink, f.Name),
			})
		}

	case rule.MatchData != nil:
		for _, d := range m.DataAssets() {
			if !rule.MatchData(m, d) {
				continue
			}
			e.logger.Debug("rule %s matched data asset %q", rule.SID, d.Name)
			findings = append(findings, Finding{
				RuleID:      rule.SID,
				Summary:     rule.Description,
				Details:     rule.Details,
				Severity:    rule.Severity,
				Mitigations: rule.Mitigations,
				Model:       m.Name,
				TargetKind:  fingerprint.KindData,
				Target:      d.Name,
				Fingerprint: fingerprint.GenerateData(m.Name, rule.SID, d.Name),
			})
		}
	}

	return findings
}

func endpointNames(f *tm.Dataflow) (src, sink string) {
	if el := f.SourceElement(); el != nil {
		src = el.Name
	}
	if el := f.SinkElement(); el != nil {
		sink = el.Name
	}
	return src, sink
}
