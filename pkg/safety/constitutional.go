package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// ConstitutionalPolicy is the second gate: synchronous pattern evaluation of
// inbound text, of individual tool calls, and of outbound model text. No LLM
// call is ever made here, so every check is cheap and deterministic.
type ConstitutionalPolicy struct {
	// MaxSearchResults caps a search tool's result-count argument.
	MaxSearchResults int
}

func NewConstitutionalPolicy() *ConstitutionalPolicy {
	return &ConstitutionalPolicy{MaxSearchResults: 50}
}

// dangerousTools are the tool names that get their arguments scanned for
// destructive patterns.
var dangerousTools = map[string]bool{
	"run_shell":            true,
	"delete_file":          true,
	"modify_system_config": true,
}

// Destructive argument patterns. Bounded where the surrounding text allows
// it; "rm -rf" style recursion and privilege escalation are what these exist
// to stop.
var destructiveRes = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\b`),
	regexp.MustCompile(`--no-preserve-root`),
	regexp.MustCompile(`(?m)^\s*sudo\s`),
	regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
	regexp.MustCompile(`\bdd\s+[^|;]*of=/dev/`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;`),
	regexp.MustCompile(`\bchmod\s+(-R\s+)?777\s+/\S*`),
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
}

// Same duplicated defense-in-depth checks as PromptGuard, kept separate on
// purpose: if one layer's patterns drift, the other still holds.
var policyInjectionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|rules)`),
	regexp.MustCompile(`(?i)(reveal|print|show)\s+(your|the)\s+system\s+prompt`),
	regexp.MustCompile(`(?i)\bnew\s+instructions\s*:`),
	regexp.MustCompile(`(?i)override\s+(your\s+)?safety\s+(rules|guidelines|checks)`),
}

// UUID-shaped tokens are internal correlation ids; they never belong in text
// shown to the user.
var uuidRe = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

// ValidateInput applies the policy's semantic input checks.
func (p *ConstitutionalPolicy) ValidateInput(text string) Verdict {
	for _, re := range policyInjectionRes {
		if re.MatchString(text) {
			return Reject(FlagInjection, "input violates the instruction-integrity policy")
		}
	}
	if ssnRe.MatchString(text) || creditCardRe.MatchString(text) {
		return Reject(FlagPII, "input contains personally identifiable data")
	}
	return Allow()
}

// ValidateToolUsage checks a single tool call before it is dispatched.
// Denials surface to the model as tool-result errors so it can adapt its
// plan; they are not user-facing failures.
func (p *ConstitutionalPolicy) ValidateToolUsage(toolName string, args map[string]any) Verdict {
	if dangerousTools[toolName] {
		joined := flattenArgs(args)
		for _, re := range destructiveRes {
			if re.MatchString(joined) {
				return Reject(FlagPolicyViolation, fmt.Sprintf("tool %s called with a destructive argument pattern", toolName))
			}
		}
	}

	// Per-tool resource ceilings.
	if toolName == "search" || strings.HasSuffix(toolName, "_search") {
		if v, ok := args["max_results"]; ok {
			if n, ok := toFloat(v); ok && int(n) > p.MaxSearchResults {
				return Reject(FlagPolicyViolation, fmt.Sprintf("max_results %d exceeds the ceiling of %d", int(n), p.MaxSearchResults))
			}
		}
	}

	return Allow()
}

// SanitizeOutput redacts internal identifiers from model output before it is
// shown to the user.
func (p *ConstitutionalPolicy) SanitizeOutput(text string) string {
	return uuidRe.ReplaceAllString(text, "[redacted-id]")
}

func flattenArgs(args map[string]any) string {
	var sb strings.Builder
	for _, v := range args {
		sb.WriteString(fmt.Sprint(v))
		sb.WriteString(" ")
	}
	return sb.String()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
