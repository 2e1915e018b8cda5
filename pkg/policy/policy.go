// Package policy classifies commits for rebase planning. A policy is an
// ordered list of rules evaluated first-match-wins; commits matching no
// rule are kept. Policies are loaded from YAML and validated against an
// embedded JSON schema before decoding.
package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// Sentinel policy errors.
var (
	// ErrPolicySchema indicates the policy document failed schema validation.
	ErrPolicySchema = errors.New("policy does not match schema")
	// ErrBadPattern indicates an invalid path glob or message regexp.
	ErrBadPattern = errors.New("invalid rule pattern")
	// ErrEmptyReword indicates a reword rule without a replacement message.
	ErrEmptyReword = errors.New("reword rule requires a message")
	// ErrInvalidSquashTarget indicates a squash target outside the graph or
	// a squash chain that never reaches a surviving commit.
	ErrInvalidSquashTarget = errors.New("invalid squash target")
	// ErrSquashCycle indicates a cycle in squash_into references.
	ErrSquashCycle = errors.New("squash chain contains a cycle")
	// ErrIncomplete indicates a classification that is not total over its graph.
	ErrIncomplete = errors.New("classification incomplete")
)

// Action is the classification a rule assigns.
type Action string

// Rule actions. SquashIntoPrevious resolves to the nearest earlier
// surviving commit at classification time.
const (
	ActionKeep               Action = "keep"
	ActionDrop               Action = "drop"
	ActionReword             Action = "reword"
	ActionSquashInto         Action = "squash_into"
	ActionSquashIntoPrevious Action = "squash_into_previous"
)

// Match holds the predicates of a rule. All specified predicates must
// hold for the rule to match. An empty Match matches every commit.
type Match struct {
	// Paths matches when every touched path matches at least one glob
	// (doublestar syntax). Commits with an empty change set do not match.
	Paths []string `yaml:"paths"`
	// PathsAny matches when at least one touched path matches a glob.
	PathsAny []string `yaml:"paths_any"`
	// Message is a regexp matched against the full commit message.
	Message string `yaml:"message"`
	// Languages matches when every detectable touched file belongs to
	// the listed languages (enry, by filename) and at least one does.
	Languages []string `yaml:"languages"`
}

// Rule pairs a Match with an Action.
type Rule struct {
	Name   string `yaml:"name"`
	Match  Match  `yaml:"match"`
	Action Action `yaml:"action"`
	// Message is the replacement message for reword rules.
	Message string `yaml:"message"`
	// Target is the explicit target commit for squash_into rules.
	Target string `yaml:"target"`
}

// Policy is an ordered rule list. Zero value keeps every commit.
type Policy struct {
	Rules []Rule `yaml:"rules"`

	compiled []compiledRule
}

// compiledRule caches the compiled predicates of one rule.
type compiledRule struct {
	rule      Rule
	message   *regexp.Regexp
	languages map[string]struct{}
}

// Load reads, validates and compiles a policy file.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	return Parse(raw)
}

// Parse validates and compiles a YAML policy document.
func Parse(raw []byte) (*Policy, error) {
	err := validateSchema(raw)
	if err != nil {
		return nil, err
	}

	var pol Policy

	err = yaml.Unmarshal(raw, &pol)
	if err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	err = pol.Compile()
	if err != nil {
		return nil, err
	}

	return &pol, nil
}

// Compile verifies rule shapes and pre-compiles predicates. Must be
// called before Classify when the Policy was built in code.
func (p *Policy) Compile() error {
	p.compiled = make([]compiledRule, 0, len(p.Rules))

	for i, rule := range p.Rules {
		compiled, err := compileRule(rule)
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, ruleLabel(rule), err)
		}

		p.compiled = append(p.compiled, compiled)
	}

	return nil
}

func compileRule(rule Rule) (compiledRule, error) {
	compiled := compiledRule{rule: rule}

	switch rule.Action {
	case ActionKeep, ActionDrop, ActionSquashIntoPrevious:
	case ActionReword:
		if rule.Message == "" {
			return compiled, ErrEmptyReword
		}
	case ActionSquashInto:
		if rule.Target == "" {
			return compiled, fmt.Errorf("%w: squash_into requires a target", ErrInvalidSquashTarget)
		}
	default:
		return compiled, fmt.Errorf("%w: unknown action %q", ErrBadPattern, rule.Action)
	}

	for _, pattern := range rule.Match.Paths {
		if !doublestar.ValidatePattern(pattern) {
			return compiled, fmt.Errorf("%w: bad glob %q", ErrBadPattern, pattern)
		}
	}

	for _, pattern := range rule.Match.PathsAny {
		if !doublestar.ValidatePattern(pattern) {
			return compiled, fmt.Errorf("%w: bad glob %q", ErrBadPattern, pattern)
		}
	}

	if rule.Match.Message != "" {
		re, err := regexp.Compile(rule.Match.Message)
		if err != nil {
			return compiled, fmt.Errorf("%w: bad regexp %q: %v", ErrBadPattern, rule.Match.Message, err)
		}

		compiled.message = re
	}

	if len(rule.Match.Languages) > 0 {
		compiled.languages = make(map[string]struct{}, len(rule.Match.Languages))
		for _, lang := range rule.Match.Languages {
			compiled.languages[lang] = struct{}{}
		}
	}

	return compiled, nil
}

// matches reports whether the compiled rule matches the commit.
func (cr *compiledRule) matches(commit *history.Commit) bool {
	if cr.message != nil && !cr.message.MatchString(commit.Message) {
		return false
	}

	if len(cr.rule.Match.Paths) > 0 && !allPathsMatch(cr.rule.Match.Paths, commit.Changes) {
		return false
	}

	if len(cr.rule.Match.PathsAny) > 0 && !anyPathMatches(cr.rule.Match.PathsAny, commit.Changes) {
		return false
	}

	if cr.languages != nil && !languagesMatch(cr.languages, commit.Changes) {
		return false
	}

	return true
}

func allPathsMatch(patterns []string, changes history.ChangeSet) bool {
	if len(changes) == 0 {
		return false
	}

	for _, change := range changes {
		if !matchesAnyPattern(patterns, change.Path) {
			return false
		}
	}

	return true
}

func anyPathMatches(patterns []string, changes history.ChangeSet) bool {
	for _, change := range changes {
		if matchesAnyPattern(patterns, change.Path) {
			return true
		}
	}

	return false
}

func matchesAnyPattern(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}

	return false
}

func ruleLabel(rule Rule) string {
	if rule.Name != "" {
		return rule.Name
	}

	return string(rule.Action)
}
