package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists the allowed priority values in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// UnknownDepartment is stored when no department could be extracted.
const UnknownDepartment = "Unknown"

// CallRecord is a single reviewed call. ID and CreatedAt are assigned by the
// store; PhoneNumber is always the canonical digits-only form.
type CallRecord struct {
	ID          int64     `json:"id"`
	CallerName  string    `json:"caller_name"`
	PhoneNumber string    `json:"phone_number"`
	Department  string    `json:"department"`
	Summary     string    `json:"summary"`
	Priority    Priority  `json:"priority"`
	AIResponse  string    `json:"ai_response"`
	Transcript  string    `json:"transcript"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateMatch points at a stored record the candidate likely re-reports.
type DuplicateMatch struct {
	Record     CallRecord `json:"record"`
	Similarity float64    `json:"similarity"`
	Reason     string     `json:"reason"`
}

// Keys understood in RawFields.
const (
	FieldName       = "name"
	FieldCallerName = "caller_name"
	FieldPhone      = "phone"
	FieldDepartment = "department"
	FieldSummary    = "summary"
	FieldPriority   = "priority"
	FieldResponse   = "response"
)

// RawFields is the untrusted field bag produced by the language model. Any key
// may be missing or hold an unexpected type.
type RawFields map[string]any

// String returns the value under key coerced to text. Unsupported types yield "".
func (r RawFields) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// First returns the first non-blank value among keys.
func (r RawFields) First(keys ...string) string {
	for _, k := range keys {
		if v := r.String(k); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
