package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reception-agent-go/internal/types"
)

func TestRecordScenarioBillingCall(t *testing.T) {
	transcript := "Hi this is John, my number is 987-654-3210, billing issue, need refund"
	raw := types.RawFields{
		"name":       "John",
		"phone":      "987-654-3210",
		"department": "Billing",
		"priority":   "high",
	}

	rec := Record(raw, transcript)

	assert.Equal(t, "John", rec.CallerName)
	assert.Equal(t, "9876543210", rec.PhoneNumber)
	assert.Equal(t, types.PriorityHigh, rec.Priority)
	assert.Equal(t, "Billing", rec.Department)
	assert.Equal(t, transcript, rec.Summary, "missing summary falls back to the short transcript")
	assert.Equal(t, transcript, rec.Transcript)
	assert.Zero(t, rec.ID)
}

func TestRecordIsTotal(t *testing.T) {
	inputs := []types.RawFields{
		nil,
		{},
		{"priority": 42, "phone": true, "summary": []any{"x"}},
		{"name": "  ", "department": "\t", "summary": "   "},
		{"priority": "URGENT", "phone": "12-34"},
	}
	for _, transcript := range []string{"", "caller asked about delivery"} {
		for _, raw := range inputs {
			rec := Record(raw, transcript)
			assert.True(t, rec.Priority.Valid(), "priority %q", rec.Priority)
			assert.NotEmpty(t, rec.Summary)
			assert.Equal(t, types.UnknownDepartment, rec.Department)
			assert.Empty(t, rec.CallerName)
			assert.Empty(t, rec.PhoneNumber)
		}
	}
}

func TestRecordAcceptsCallerNameAlias(t *testing.T) {
	rec := Record(types.RawFields{"caller_name": " Priya "}, "")
	assert.Equal(t, "Priya", rec.CallerName)
}

func TestRecordNumericPhone(t *testing.T) {
	var raw types.RawFields
	dec := json.NewDecoder(strings.NewReader(`{"phone": 9876543210}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	assert.Equal(t, "9876543210", Record(raw, "").PhoneNumber)
}

func TestPhone(t *testing.T) {
	tests := map[string]string{
		"987-654-3210":      "9876543210",
		"+1 (987) 654-3210": "19876543210",
		"555 1234":          "5551234",
		"555-123":           "",
		"call me maybe":     "",
		"":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Phone(in), "Phone(%q)", in)
	}
}

func TestPriority(t *testing.T) {
	tests := map[string]types.Priority{
		"low":     types.PriorityLow,
		" HIGH ":  types.PriorityHigh,
		"Medium":  types.PriorityMedium,
		"urgent":  types.PriorityMedium,
		"":        types.PriorityMedium,
		"high!!!": types.PriorityMedium,
	}
	for in, want := range tests {
		assert.Equal(t, want, Priority(in), "Priority(%q)", in)
	}
}

func TestSummaryFallbackTruncatesOnWordBoundary(t *testing.T) {
	transcript := strings.Repeat("refund ", 60)
	got := Summary("", transcript)

	assert.True(t, strings.HasSuffix(got, "..."))
	body := strings.TrimSuffix(got, "...")
	assert.LessOrEqual(t, utf8.RuneCountInString(body), summaryMaxRunes)
	for _, w := range strings.Fields(body) {
		assert.Equal(t, "refund", w, "no partial words")
	}
}

func TestSummaryKeepsExtracted(t *testing.T) {
	assert.Equal(t, "wants a refund", Summary("  wants a refund ", "ignored"))
	assert.Equal(t, noSummary, Summary("", "   "))
}

func TestTruncateSingleLongWord(t *testing.T) {
	got := Truncate(strings.Repeat("a", 250), 200)
	assert.Equal(t, strings.Repeat("a", 200)+"...", got)
}

func TestCanonicalizeReviewerEdits(t *testing.T) {
	rec := Canonicalize(types.CallRecord{
		CallerName:  " Ana ",
		PhoneNumber: "(555) 867-5309",
		Priority:    "low",
		Summary:     "",
		Transcript:  "short call",
	})

	assert.Equal(t, "Ana", rec.CallerName)
	assert.Equal(t, "5558675309", rec.PhoneNumber)
	assert.Equal(t, types.PriorityLow, rec.Priority)
	assert.Equal(t, "short call", rec.Summary)
	assert.Equal(t, types.UnknownDepartment, rec.Department)
}
