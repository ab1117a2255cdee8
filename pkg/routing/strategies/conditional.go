package strategies

import (
	"fmt"
	"strings"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// Conditional routes by the first rule whose predicates all match the
// request. Predicates are conjunctions over model name prefix,
// estimated token-count range, and the region hint; rules with no
// predicates are rejected at construction. When no rule fires, the
// default provider takes the request.
//
// The matched provider leads the candidate list and the default
// provider (when different) trails it as the failover target.
type Conditional struct {
	rules           []routing.Rule
	defaultProvider string
}

// NewConditional creates a conditional strategy. It rejects rules that
// declare no predicates and rules without a target.
func NewConditional(rules []routing.Rule, defaultProvider string) (*Conditional, error) {
	if defaultProvider == "" {
		return nil, fmt.Errorf("conditional routing requires a default provider")
	}
	for i, rule := range rules {
		if rule.Provider == "" {
			return nil, fmt.Errorf("conditional rule %d has no target provider", i)
		}
		if rule.ModelPrefix == "" && rule.MinTokens == 0 && rule.MaxTokens == 0 && rule.Region == "" {
			return nil, fmt.Errorf("conditional rule %d has no predicates", i)
		}
	}
	return &Conditional{rules: rules, defaultProvider: defaultProvider}, nil
}

// Name returns the strategy identifier.
func (s *Conditional) Name() string { return NameConditional }

// Order evaluates the rules in order and builds the candidate list.
func (s *Conditional) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	byName := make(map[string]providers.Provider, len(available))
	for _, p := range available {
		byName[p.Name()] = p
	}

	target := s.defaultProvider
	for _, rule := range s.rules {
		if s.matches(rule, req) {
			target = rule.Provider
			break
		}
	}

	var ordered []providers.Provider
	if p, ok := byName[target]; ok {
		ordered = append(ordered, p)
	}
	if target != s.defaultProvider {
		if p, ok := byName[s.defaultProvider]; ok {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		return nil, routing.ErrNoProvidersAvailable
	}
	return ordered, nil
}

// matches evaluates the rule's predicate conjunction.
func (s *Conditional) matches(rule routing.Rule, req providers.Request) bool {
	if rule.ModelPrefix != "" && !strings.HasPrefix(req.ModelName(), rule.ModelPrefix) {
		return false
	}

	if rule.MinTokens > 0 || rule.MaxTokens > 0 {
		tokens := providers.EstimateRequestTokens(req)
		if rule.MinTokens > 0 && tokens < rule.MinTokens {
			return false
		}
		if rule.MaxTokens > 0 && tokens > rule.MaxTokens {
			return false
		}
	}

	if rule.Region != "" && req.Hints().Region != rule.Region {
		return false
	}

	return true
}
