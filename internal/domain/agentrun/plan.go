package agentrun

import (
	"regexp"
	"strings"
)

var (
	planHeaderRe = regexp.MustCompile(`(?i)^(?:#+\s*)?plan\b[:\-]?\s*(.*)$`)
	planStepRe   = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)
)

// ParsePlan detects a stepped plan proposal in agent response text. A plan is
// a "Plan" header line (optionally a markdown heading, optionally followed by
// a title) and at least one numbered or bulleted step below it. Returns nil
// when the text contains no plan.
func ParsePlan(text string) *Plan {
	lines := strings.Split(text, "\n")

	start := -1
	title := ""
	for i, line := range lines {
		if m := planHeaderRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			start = i + 1
			title = strings.TrimSpace(m[1])
			break
		}
	}
	if start < 0 {
		return nil
	}
	if title == "" {
		title = "Proposed plan"
	}

	var steps []string
	for _, line := range lines[start:] {
		if m := planStepRe.FindStringSubmatch(line); m != nil {
			steps = append(steps, strings.TrimSpace(m[1]))
			continue
		}
		if len(steps) > 0 && strings.TrimSpace(line) == "" {
			break
		}
	}
	if len(steps) == 0 {
		return nil
	}

	return &Plan{Title: title, Steps: steps}
}

// WithPlanDetection promotes a run awaiting free-text input to PLAN_PROPOSED
// when its latest response parses as a plan. All other runs pass through
// unchanged. This is the plan-detection step that sits between the translator
// and the UI.
func WithPlanDetection(run AgentRun) AgentRun {
	if run.Status != StatusResponseDefault {
		return run
	}
	last := run.LastEntry()
	if last == nil || last.Type != EntryResponse {
		return run
	}
	plan := ParsePlan(last.Content)
	if plan == nil {
		return run
	}
	run.Status = StatusPlanProposed
	run.CurrentPlan = plan
	return run
}
