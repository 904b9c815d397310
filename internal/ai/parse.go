package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var clauseSchemaDoc = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "array",
	"items": map[string]any{
		"type":     "object",
		"required": []string{"original_text", "status"},
		"properties": map[string]any{
			"clause_id":            map[string]any{"type": "string"},
			"original_text":        map[string]any{"type": "string"},
			"risk_score":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"status":               map[string]any{"enum": []string{"PASS", "FLAGGED"}},
			"regulation_violation": map[string]any{"type": []string{"string", "null"}},
			"reasoning":            map[string]any{"type": "string"},
			"ai_reasoning":         map[string]any{"type": "string"},
		},
	},
}

var clauseSchema = mustCompileSchema(clauseSchemaDoc)

func mustCompileSchema(doc map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("marshal clause schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("clauses.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add clause schema: %v", err))
	}
	return compiler.MustCompile("clauses.json")
}

var fenceOpen = regexp.MustCompile("^```[A-Za-z0-9_-]*")

// StripFences removes an optional fenced-code wrapper from a model response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpen.ReplaceAllString(s, "")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// wireFinding accepts both "reasoning" and the older "ai_reasoning" key.
type wireFinding struct {
	ClauseID            string              `json:"clause_id"`
	OriginalText        string              `json:"original_text"`
	RiskScore           float64             `json:"risk_score"`
	Status              models.ClauseStatus `json:"status"`
	RegulationViolation *string             `json:"regulation_violation"`
	Reasoning           string              `json:"reasoning"`
	AIReasoning         string              `json:"ai_reasoning"`
}

// ParseFindings decodes a model response into clause findings. Responses
// wrapped in an object under "clauses" or "findings" are unwrapped. Any
// failure is reported as a model failure.
func ParseFindings(raw string) ([]models.ClauseFinding, error) {
	body := StripFences(raw)
	if body == "" {
		return nil, fault.ModelFailure("parse findings", ErrEmptyResponse)
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fault.ModelFailure("parse findings", fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if obj, ok := doc.(map[string]any); ok {
		for _, key := range []string{"clauses", "findings"} {
			if inner, ok := obj[key]; ok {
				doc = inner
				break
			}
		}
	}
	if err := clauseSchema.Validate(doc); err != nil {
		return nil, fault.ModelFailure("parse findings", fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fault.ModelFailure("parse findings", err)
	}
	var wire []wireFinding
	if err := json.Unmarshal(normalized, &wire); err != nil {
		return nil, fault.ModelFailure("parse findings", fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	findings := make([]models.ClauseFinding, 0, len(wire))
	for _, w := range wire {
		f := models.ClauseFinding{
			ClauseID:            w.ClauseID,
			OriginalText:        w.OriginalText,
			RiskScore:           w.RiskScore,
			Status:              w.Status,
			RegulationViolation: w.RegulationViolation,
			Reasoning:           w.Reasoning,
		}
		if f.Reasoning == "" {
			f.Reasoning = w.AIReasoning
		}
		if f.ClauseID == "" {
			f.ClauseID = uuid.NewString()
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// FailureFinding is the single FLAGGED finding returned in place of a primary
// model result when the primary call or its parsing fails.
func FailureFinding(err error) models.ClauseFinding {
	return models.ClauseFinding{
		ClauseID:     uuid.NewString(),
		OriginalText: "Error analyzing document",
		RiskScore:    1.0,
		Status:       models.ClauseStatusFlagged,
		Reasoning:    "Analysis failed: " + err.Error(),
	}
}
