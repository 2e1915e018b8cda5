package policy

import (
	"fmt"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// Decision is the classification of one commit.
type Decision struct {
	Action Action
	// Message is the replacement message for reword decisions.
	Message string
	// Target is the squash target for squash decisions.
	Target history.ID
	// Rule names the rule that produced the decision; empty for the
	// default keep.
	Rule string
}

// Classification maps every commit of a graph to exactly one decision.
type Classification map[history.ID]Decision

// Survives reports whether the commit remains in the rebased history as
// its own operation (keep or reword).
func (d Decision) Survives() bool {
	return d.Action == ActionKeep || d.Action == ActionReword
}

// Classify labels every commit of the graph with the first matching
// rule, defaulting to keep. Squash targets are validated here, before
// any synthesis: an explicit target outside the graph, a chain ending
// in a dropped commit, or a first commit squashed into "previous" all
// return ErrInvalidSquashTarget; circular chains return ErrSquashCycle.
func (p *Policy) Classify(graph *history.Graph) (Classification, error) {
	if p.compiled == nil {
		err := p.Compile()
		if err != nil {
			return nil, err
		}
	}

	classification := make(Classification, graph.Len())

	for _, commit := range graph.Commits() {
		decision, err := p.classifyCommit(graph, classification, commit)
		if err != nil {
			return nil, err
		}

		classification[commit.ID] = decision
	}

	err := classification.validateSquashChains(graph)
	if err != nil {
		return nil, err
	}

	return classification, nil
}

func (p *Policy) classifyCommit(
	graph *history.Graph,
	sofar Classification,
	commit *history.Commit,
) (Decision, error) {
	for i := range p.compiled {
		compiled := &p.compiled[i]
		if !compiled.matches(commit) {
			continue
		}

		return decisionFromRule(graph, sofar, commit, compiled.rule)
	}

	return Decision{Action: ActionKeep}, nil
}

func decisionFromRule(
	graph *history.Graph,
	sofar Classification,
	commit *history.Commit,
	rule Rule,
) (Decision, error) {
	decision := Decision{Action: rule.Action, Rule: ruleLabel(rule)}

	switch rule.Action {
	case ActionKeep, ActionDrop:
	case ActionReword:
		decision.Message = rule.Message
	case ActionSquashInto:
		target := history.ID(rule.Target)
		if !graph.Contains(target) {
			return decision, fmt.Errorf("%w: commit %s -> %s (not in graph)",
				ErrInvalidSquashTarget, commit.ID, target)
		}

		if target == commit.ID {
			return decision, fmt.Errorf("%w: commit %s targets itself", ErrInvalidSquashTarget, commit.ID)
		}

		decision.Action = ActionSquashInto
		decision.Target = target
	case ActionSquashIntoPrevious:
		target, ok := previousSurvivor(graph, sofar, commit.ID)
		if !ok {
			return decision, fmt.Errorf("%w: commit %s has no earlier surviving commit",
				ErrInvalidSquashTarget, commit.ID)
		}

		decision.Action = ActionSquashInto
		decision.Target = target
	}

	return decision, nil
}

// previousSurvivor returns the nearest earlier commit classified keep
// or reword. Commits are classified oldest-first, so every earlier
// decision is already present.
func previousSurvivor(graph *history.Graph, sofar Classification, id history.ID) (history.ID, bool) {
	order := graph.Order()

	for i := graph.Index(id) - 1; i >= 0; i-- {
		if sofar[order[i]].Survives() {
			return order[i], true
		}
	}

	return "", false
}

// ResolveTarget follows a squash chain to its ultimate surviving
// commit. For keep/reword decisions it returns the identifier itself.
func (c Classification) ResolveTarget(id history.ID) (history.ID, error) {
	seen := map[history.ID]struct{}{}

	current := id

	for {
		if _, looped := seen[current]; looped {
			return "", fmt.Errorf("%w: via commit %s", ErrSquashCycle, id)
		}

		seen[current] = struct{}{}

		decision, ok := c[current]
		if !ok {
			return "", fmt.Errorf("%w: commit %s -> %s (unclassified)", ErrInvalidSquashTarget, id, current)
		}

		switch decision.Action {
		case ActionKeep, ActionReword:
			return current, nil
		case ActionSquashInto:
			current = decision.Target
		case ActionDrop:
			return "", fmt.Errorf("%w: commit %s resolves to dropped commit %s",
				ErrInvalidSquashTarget, id, current)
		default:
			return "", fmt.Errorf("%w: commit %s has unresolved action %q",
				ErrInvalidSquashTarget, current, decision.Action)
		}
	}
}

// validateSquashChains checks every squash decision resolves to a
// surviving commit without cycles.
func (c Classification) validateSquashChains(graph *history.Graph) error {
	for _, id := range graph.Order() {
		if c[id].Action != ActionSquashInto {
			continue
		}

		_, err := c.ResolveTarget(id)
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate checks totality: every commit of the graph classified
// exactly once, no decisions for unknown commits.
func (c Classification) Validate(graph *history.Graph) error {
	for _, id := range graph.Order() {
		if _, ok := c[id]; !ok {
			return fmt.Errorf("%w: commit %s unclassified", ErrIncomplete, id)
		}
	}

	for id := range c {
		if !graph.Contains(id) {
			return fmt.Errorf("%w: decision for %s outside graph", ErrIncomplete, id)
		}
	}

	return nil
}
