package models

// ClauseStatus is the verdict for a single analyzed clause.
type ClauseStatus string

const (
	ClauseStatusPass    ClauseStatus = "PASS"
	ClauseStatusFlagged ClauseStatus = "FLAGGED"
)

// ClauseFinding is the atomic unit of analysis output.
type ClauseFinding struct {
	ClauseID            string       `json:"clause_id,omitempty"`
	OriginalText        string       `json:"original_text"`
	RiskScore           float64      `json:"risk_score"`
	Status              ClauseStatus `json:"status"`
	RegulationViolation *string      `json:"regulation_violation,omitempty"`
	Reasoning           string       `json:"reasoning"`
}

// AnyFlagged reports whether at least one finding is FLAGGED.
func AnyFlagged(findings []ClauseFinding) bool {
	for _, f := range findings {
		if f.Status == ClauseStatusFlagged {
			return true
		}
	}
	return false
}
