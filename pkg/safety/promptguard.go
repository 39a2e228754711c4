package safety

import (
	"regexp"
	"strings"
)

// PromptGuard is the first gate on every inbound user message. Sanitize
// normalizes known injection scaffolding without rejecting the message;
// Validate rejects on PII and injection patterns before any LLM call is made.
type PromptGuard struct{}

func NewPromptGuard() *PromptGuard {
	return &PromptGuard{}
}

// Compiled patterns for injection scaffolding that Sanitize strips outright.
// These are syntactic markers used to fake a role or message boundary.
var scaffoldingRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\|im_start\|>\s*(system|assistant)`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
	regexp.MustCompile(`(?i)<<\s*/?SYS\s*>>`),
	regexp.MustCompile(`(?i)\[/?INST\]`),
	regexp.MustCompile(`(?im)^#{1,4}\s*(system|assistant)\s*:`),
	regexp.MustCompile(`(?im)^(system|assistant)\s*:\s*`),
}

// Injection phrases that Validate rejects on. Matching is deliberately
// broad: a false rejection costs one refusal, a false pass costs a hijacked
// agent.
var injectionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|directions)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+|your\s+)?(previous|prior|above|system)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above|before)`),
	regexp.MustCompile(`(?i)(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions|hidden\s+instructions)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\s`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)\s+(a|an)\s+(unrestricted|unfiltered|uncensored)`),
	regexp.MustCompile(`(?i)\bnew\s+instructions\s*:`),
	regexp.MustCompile(`(?i)\b(DAN|jailbreak|jailbroken)\s+mode\b`),
	regexp.MustCompile(`(?i)enable\s+developer\s+mode`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+have|a\s+system\s+with)\s+no\s+(restrictions|limitations|filters)`),
}

// PII patterns. The credit-card check requires 13-16 digits with optional
// single separators so that plain long numbers in code do not trip it.
var (
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b(?:\d[ -]?){12}\d{1,4}\b`)
	emailGuardRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)
)

// Sanitize strips role-override scaffolding from text. It never rejects;
// rejection belongs to Validate.
func (g *PromptGuard) Sanitize(text string) string {
	out := text
	for _, re := range scaffoldingRes {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

// Validate rejects text containing PII or injection patterns. A failing
// verdict short-circuits the conversation turn: the LLM is never invoked.
func (g *PromptGuard) Validate(text string) Verdict {
	if ssnRe.MatchString(text) {
		return Reject(FlagPII, "input contains an SSN-like pattern")
	}
	if creditCardRe.MatchString(text) {
		return Reject(FlagPII, "input contains a credit-card-like pattern")
	}
	if emailGuardRe.MatchString(text) {
		return Reject(FlagPII, "input contains an email address")
	}

	for _, re := range injectionRes {
		if re.MatchString(text) {
			return Reject(FlagInjection, "input matches a prompt-injection pattern")
		}
	}

	return Allow()
}
