// Package normalize turns untrusted model output into a draft CallRecord.
//
// Every function here is pure and total: malformed input degrades to a
// default value instead of producing an error.
package normalize

import (
	"strings"
	"unicode"

	"reception-agent-go/internal/types"
)

const (
	minPhoneDigits  = 7
	summaryMaxRunes = 200
	noSummary       = "No summary available."
)

// Record builds a draft from raw extracted fields and the call transcript.
func Record(raw types.RawFields, transcript string) types.CallRecord {
	return types.CallRecord{
		CallerName:  strings.TrimSpace(raw.First(types.FieldName, types.FieldCallerName)),
		PhoneNumber: Phone(raw.String(types.FieldPhone)),
		Department:  Department(raw.String(types.FieldDepartment)),
		Summary:     Summary(raw.String(types.FieldSummary), transcript),
		Priority:    Priority(raw.String(types.FieldPriority)),
		AIResponse:  strings.TrimSpace(raw.String(types.FieldResponse)),
		Transcript:  transcript,
	}
}

// Canonicalize re-applies the normalization rules to a reviewer-edited draft
// so storage invariants hold no matter what was typed in.
func Canonicalize(rec types.CallRecord) types.CallRecord {
	rec.CallerName = strings.TrimSpace(rec.CallerName)
	rec.PhoneNumber = Phone(rec.PhoneNumber)
	rec.Department = Department(rec.Department)
	rec.Summary = Summary(rec.Summary, rec.Transcript)
	rec.Priority = Priority(string(rec.Priority))
	rec.AIResponse = strings.TrimSpace(rec.AIResponse)
	return rec
}

// Phone strips everything but digits. Fewer than seven digits counts as absent.
func Phone(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < minPhoneDigits {
		return ""
	}
	return b.String()
}

// Priority maps v case-insensitively onto Low/Medium/High, defaulting to Medium.
func Priority(v string) types.Priority {
	v = strings.TrimSpace(v)
	for _, p := range types.Priorities {
		if strings.EqualFold(v, string(p)) {
			return p
		}
	}
	return types.PriorityMedium
}

func Department(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return types.UnknownDepartment
}

// Summary returns v trimmed, or a fallback cut from the transcript.
func Summary(v, transcript string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	if fb := Truncate(transcript, summaryMaxRunes); fb != "" {
		return fb
	}
	return noSummary
}

// Truncate shortens text to at most max runes, backing off to the last word
// boundary and marking the cut with "...".
func Truncate(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	cut := r[:max]
	if !unicode.IsSpace(r[max]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "..."
}
