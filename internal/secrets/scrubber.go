// Package secrets redacts credential material from source content
// before it is sent to the generative provider.
package secrets

import (
	"fmt"
	"regexp"
)

// Rule is one secret detection pattern.
type Rule struct {
	// ID identifies the rule in findings.
	ID string

	// Pattern is the regexp source; compiled once at construction.
	Pattern string
}

// DefaultRules returns the default detection set, based on common
// secret patterns.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|ASIA)[A-Z0-9]{16}`},
		{ID: "aws-secret-access-key", Pattern: `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`},
		{ID: "github-token", Pattern: `gh[pousr]_[A-Za-z0-9]{36}`},
		{ID: "google-api-key", Pattern: `AIza[0-9A-Za-z\-_]{35}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[0-9A-Za-z\-]{10,48}`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`},
		{ID: "generic-api-key", Pattern: `(?i)(?:api[_-]?key|apikey|auth[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`},
		{ID: "generic-secret", Pattern: `(?i)(?:secret|password|passwd)\s*[:=]\s*['"][^\s'"]{8,}['"]`},
		{ID: "bearer-token", Pattern: `(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`},
	}
}

// Finding records one redaction without its value.
type Finding struct {
	RuleID string
	Start  int
	End    int
}

// Result is the outcome of scrubbing one piece of content.
type Result struct {
	Scrubbed string
	Findings []Finding
}

// Scrubber detects and redacts secrets using regexp rules.
type Scrubber struct {
	rules []compiledRule
}

type compiledRule struct {
	id string
	re *regexp.Regexp
}

// New compiles the given rules into a Scrubber. Nil rules means
// DefaultRules.
func New(rules []Rule) (*Scrubber, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{id: r.ID, re: re})
	}
	return &Scrubber{rules: compiled}, nil
}

// Scrub replaces every rule match with a placeholder naming the rule.
// Matches are located against the original content, so overlapping
// rules cannot corrupt each other's offsets.
func (s *Scrubber) Scrub(content string) *Result {
	res := &Result{Scrubbed: content}
	for _, rule := range s.rules {
		locs := rule.re.FindAllStringIndex(res.Scrubbed, -1)
		if locs == nil {
			continue
		}
		placeholder := "[REDACTED:" + rule.id + "]"
		out := make([]byte, 0, len(res.Scrubbed))
		prev := 0
		for _, loc := range locs {
			res.Findings = append(res.Findings, Finding{RuleID: rule.id, Start: loc[0], End: loc[1]})
			out = append(out, res.Scrubbed[prev:loc[0]]...)
			out = append(out, placeholder...)
			prev = loc[1]
		}
		out = append(out, res.Scrubbed[prev:]...)
		res.Scrubbed = string(out)
	}
	return res
}
