// Package injection detects prompt-injection attempts with pattern-based
// scoring. Each matched pattern contributes weight x occurrences to a
// cumulative risk score; content at or above the configured threshold is
// blocked.
//
// The pattern table is part of the gateway's observable behavior: changing
// an entry changes which prompts are blocked.
package injection

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Categories of injection cues.
const (
	CategoryInstructionOverride = "instruction_override"
	CategoryRoleManipulation    = "role_manipulation"
	CategoryDelimiterInjection  = "delimiter_injection"
	CategoryContextManipulation = "context_manipulation"
)

// Result is the outcome of a prompt scan. RiskScore is the display score,
// clamped to [0, 1] and rounded to two decimals; the blocking decision uses
// the unclamped cumulative score, which may exceed 1.
type Result struct {
	Allowed    bool
	RiskScore  float64
	Reason     string
	Categories []string
}

type rule struct {
	re       *regexp.Regexp
	weight   float64
	category string
}

// Weights reflect severity: higher = more suspicious.
var rules = []rule{
	// Instruction override.
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`), 0.5, CategoryInstructionOverride},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|your)\s+(instructions|prompts|rules|programming)`), 0.5, CategoryInstructionOverride},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|context|programming)`), 0.5, CategoryInstructionOverride},
	{regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|any|the)\s+(previous|prior|original)\s+(instructions|rules)`), 0.5, CategoryInstructionOverride},
	{regexp.MustCompile(`(?i)override\s+(your|all|the)\s+(instructions|rules|guidelines|programming)`), 0.4, CategoryInstructionOverride},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:`), 0.3, CategoryInstructionOverride},

	// Role manipulation.
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+`), 0.4, CategoryRoleManipulation},
	{regexp.MustCompile(`(?i)act\s+as\s+(an?\s+)?(unrestricted|unfiltered|uncensored|evil)`), 0.5, CategoryRoleManipulation},
	{regexp.MustCompile(`(?i)pretend\s+(you'?re?|to\s+be)\s+(an?\s+)?(unrestricted|unfiltered|different\s+ai)`), 0.5, CategoryRoleManipulation},
	{regexp.MustCompile(`(?i)\bDAN\s*(mode)?\b`), 0.6, CategoryRoleManipulation},
	{regexp.MustCompile(`(?i)jailbreak`), 0.7, CategoryRoleManipulation},
	{regexp.MustCompile(`(?i)developer\s+mode\s+(enabled|on|activated)`), 0.5, CategoryRoleManipulation},

	// Delimiter injection.
	{regexp.MustCompile(`(?i)<\|?(system|im_start|im_end|endoftext)\|?>`), 0.6, CategoryDelimiterInjection},
	{regexp.MustCompile(`(?i)\[SYSTEM\]`), 0.4, CategoryDelimiterInjection},
	{regexp.MustCompile(`(?i)#{3,}\s*(system|instruction|prompt)`), 0.3, CategoryDelimiterInjection},
	{regexp.MustCompile("(?i)```" + `\s*(system|instruction)`), 0.3, CategoryDelimiterInjection},

	// Context manipulation.
	{regexp.MustCompile(`(?i)(respond|answer|reply)\s+(without|with\s+no)\s+(restrictions|limits|filters|guidelines)`), 0.5, CategoryContextManipulation},
	{regexp.MustCompile(`(?i)no\s+(ethical|moral|safety)\s+(guidelines|restrictions|filters|limits)`), 0.5, CategoryContextManipulation},
	{regexp.MustCompile(`(?i)bypass\s+(your|all|the|any)\s+(restrictions|filters|safety|guidelines)`), 0.6, CategoryContextManipulation},
	{regexp.MustCompile(`(?i)enable\s+(unrestricted|unfiltered|uncensored)\s+mode`), 0.5, CategoryContextManipulation},
}

// Scan runs all patterns against content and accumulates a risk score.
// Content is blocked when the cumulative score reaches threshold.
func Scan(content string, threshold float64) Result {
	if strings.TrimSpace(content) == "" {
		return Result{Allowed: true, RiskScore: 0, Reason: "empty"}
	}

	var total float64
	var matched []string
	for _, r := range rules {
		hits := r.re.FindAllStringIndex(content, -1)
		if len(hits) == 0 {
			continue
		}
		total += r.weight * float64(len(hits))
		if !slices.Contains(matched, r.category) {
			matched = append(matched, r.category)
		}
	}

	// The display score is capped at 1.0 for clean reporting; the decision
	// below uses the uncapped total.
	display := math.Round(math.Min(total, 1.0)*100) / 100

	if total >= threshold {
		return Result{
			Allowed:    false,
			RiskScore:  display,
			Reason:     "injection detected: " + strings.Join(matched, ", "),
			Categories: matched,
		}
	}

	reason := "pass"
	if len(matched) > 0 {
		reason = fmt.Sprintf("low-risk patterns: %s", strings.Join(matched, ", "))
	}
	return Result{Allowed: true, RiskScore: display, Reason: reason, Categories: matched}
}
