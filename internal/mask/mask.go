// Package mask holds display-only redaction of caller data. Nothing here is
// ever written back to the store.
package mask

import "reception-agent-go/internal/types"

const (
	visibleDigits = 4
	maskRun       = "******"
)

// Phone keeps the first four characters and replaces the rest with a fixed
// run of six asterisks, whatever the true length. Shorter inputs are returned
// unchanged.
func Phone(number string) string {
	r := []rune(number)
	if len(r) < visibleDigits {
		return number
	}
	return string(r[:visibleDigits]) + maskRun
}

// Record returns a copy of rec with its phone masked for presentation.
func Record(rec types.CallRecord) types.CallRecord {
	rec.PhoneNumber = Phone(rec.PhoneNumber)
	return rec
}

// Records masks every record in the slice, leaving the input untouched.
func Records(recs []types.CallRecord) []types.CallRecord {
	out := make([]types.CallRecord, len(recs))
	for i, rec := range recs {
		out[i] = Record(rec)
	}
	return out
}

// Match masks the matched record inside a duplicate warning.
func Match(m *types.DuplicateMatch) *types.DuplicateMatch {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Record = Record(cp.Record)
	return &cp
}
