// Package queue carries job messages over NATS JetStream.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
)

// JobMessage is the wire form of an ingest message.
type JobMessage struct {
	JobID             string `json:"job_id"`
	DocumentReference string `json:"document_reference"`
}

// Job is a decoded and validated JobMessage.
type Job struct {
	ID                uuid.UUID
	DocumentReference string
}

// Encode returns the wire form of a job message.
func Encode(jobID uuid.UUID, ref string) ([]byte, error) {
	return json.Marshal(JobMessage{JobID: jobID.String(), DocumentReference: ref})
}

// Decode parses and validates a message body. Every failure is fault.Invalid.
func Decode(data []byte) (Job, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Job{}, fault.Invalid("decode job message", err)
	}

	if strings.TrimSpace(m.JobID) == "" {
		return Job{}, fault.Invalid("decode job message", errors.New("job_id is required"))
	}
	id, err := uuid.Parse(m.JobID)
	if err != nil {
		return Job{}, fault.Invalid("decode job message", fmt.Errorf("job_id: %w", err))
	}
	if strings.TrimSpace(m.DocumentReference) == "" {
		return Job{}, fault.Invalid("decode job message", errors.New("document_reference is required"))
	}

	return Job{ID: id, DocumentReference: m.DocumentReference}, nil
}
