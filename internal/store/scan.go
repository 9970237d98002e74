package store

import (
	"fmt"
	"time"

	"reception-agent-go/internal/types"
)

const callColumns = "id, created_at, caller_name, phone_number, department, priority, summary, transcript, ai_response"

func scanCall(scanner interface{ Scan(dest ...any) error }) (types.CallRecord, error) {
	var (
		rec        types.CallRecord
		createdRaw string
		priority   string
	)
	if err := scanner.Scan(
		&rec.ID,
		&createdRaw,
		&rec.CallerName,
		&rec.PhoneNumber,
		&rec.Department,
		&priority,
		&rec.Summary,
		&rec.Transcript,
		&rec.AIResponse,
	); err != nil {
		return types.CallRecord{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return types.CallRecord{}, fmt.Errorf("parse created_at %q: %w", createdRaw, err)
	}
	rec.CreatedAt = created
	rec.Priority = types.Priority(priority)
	return rec, nil
}
