// Package policy evaluates configurable initiation rules before a payment
// intent is created. Rules are boolean expressions over the request's
// parameters; the first rule that evaluates false blocks initiation with its
// name as the reason.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// RuleConfig is one named rule expression, e.g.
//
//	{Name: "PositiveAmount", Expression: "amount > 0"}
//
// Available parameters: amount (int64), currency (string), provider (string),
// invoice_id (string).
type RuleConfig struct {
	Name       string
	Expression string
}

// Decision is the outcome of evaluating all rules against one request.
type Decision struct {
	Allow  bool
	Reason string // name of the rule that blocked, empty when allowed
}

// Request carries the initiation parameters rules can reference.
type Request struct {
	InvoiceID string
	Amount    int64
	Currency  string
	Provider  string
}

// InitiationPolicy holds compiled rule expressions.
type InitiationPolicy struct {
	rules []compiledRule
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// DefaultRules guard against requests no gateway would accept.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{Name: "PositiveAmount", Expression: "amount > 0"},
		{Name: "KnownProvider", Expression: "provider == 'click' || provider == 'payme'"},
	}
}

// NewInitiationPolicy compiles the given rules. An empty rule set allows
// everything.
func NewInitiationPolicy(rules []RuleConfig) (*InitiationPolicy, error) {
	p := &InitiationPolicy{}
	for _, rc := range rules {
		expr, err := govaluate.NewEvaluableExpression(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compiling rule %q: %w", rc.Name, err)
		}
		p.rules = append(p.rules, compiledRule{name: rc.Name, expr: expr})
	}
	return p, nil
}

// Evaluate runs every rule against the request. Rules must evaluate to a
// boolean; anything else is an error.
func (p *InitiationPolicy) Evaluate(req Request) (Decision, error) {
	params := map[string]interface{}{
		"invoice_id": req.InvoiceID,
		"amount":     req.Amount,
		"currency":   req.Currency,
		"provider":   req.Provider,
	}
	for _, rule := range p.rules {
		res, err := rule.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: evaluating rule %q: %w", rule.name, err)
		}
		ok, isBool := res.(bool)
		if !isBool {
			return Decision{}, fmt.Errorf("policy: rule %q did not evaluate to a boolean", rule.name)
		}
		if !ok {
			return Decision{Allow: false, Reason: rule.name}, nil
		}
	}
	return Decision{Allow: true}, nil
}
