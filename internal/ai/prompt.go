package ai

import (
	"fmt"
	"strings"
)

// GoldenRules are the contract policies every clause is checked against.
var GoldenRules = []string{
	"Indemnification must be mutual.",
	"Payment terms max 60 days.",
}

const promptTemplate = `You are a legal expert. Compare the following contract text against these Golden Rules.
Return a JSON array of clause analyses and nothing else.

Golden Rules:
%s
Contract Text:
%s

Output format:
[
  {
    "original_text": "text of clause",
    "risk_score": 0.8,
    "status": "FLAGGED",
    "regulation_violation": "GDPR Art 28",
    "reasoning": "Explanation..."
  }
]
status must be PASS or FLAGGED; risk_score must be between 0 and 1.`

// BuildPrompt renders the evaluation prompt for already-redacted contract text.
func BuildPrompt(sanitizedText string) string {
	var rules strings.Builder
	for i, r := range GoldenRules {
		fmt.Fprintf(&rules, "%d. %s\n", i+1, r)
	}
	return fmt.Sprintf(promptTemplate, rules.String(), sanitizedText)
}
