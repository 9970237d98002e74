// Package dedup flags draft calls that likely re-report a recently stored call.
//
// A stored record matches when the caller identity agrees (same non-empty
// phone, or same non-empty name ignoring case) and the summaries overlap by at
// least the configured threshold. The result is advisory and never blocks a
// save.
package dedup

import (
	"fmt"
	"strings"
	"time"

	"reception-agent-go/internal/types"
)

const (
	DefaultThreshold  = 0.6
	DefaultWindowSize = 50
)

// Window bounds which stored records are eligible for comparison.
type Window struct {
	// Size caps the number of most recent records compared.
	Size int
	// MaxAge drops records older than this; zero disables the age bound.
	MaxAge time.Duration
}

type Detector struct {
	threshold float64
	window    Window
	now       func() time.Time
}

// NewDetector returns a detector with the given threshold and window. Zero
// values fall back to the defaults.
func NewDetector(threshold float64, window Window) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window.Size <= 0 {
		window.Size = DefaultWindowSize
	}
	return &Detector{threshold: threshold, window: window, now: time.Now}
}

func (d *Detector) Threshold() float64 { return d.threshold }

func (d *Detector) Window() Window { return d.window }

// FindDuplicate compares candidate against recent, which must be ordered
// newest first. It returns the best match above threshold, or nil.
func (d *Detector) FindDuplicate(candidate types.CallRecord, recent []types.CallRecord) *types.DuplicateMatch {
	candTokens := Tokens(candidate.Summary)
	cutoff := time.Time{}
	if d.window.MaxAge > 0 {
		cutoff = d.now().Add(-d.window.MaxAge)
	}

	var best *types.DuplicateMatch
	for i, rec := range recent {
		if i >= d.window.Size {
			break
		}
		if !cutoff.IsZero() && !rec.CreatedAt.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		reason := sameCaller(candidate, rec)
		if reason == "" {
			continue
		}
		score := jaccard(candTokens, Tokens(rec.Summary))
		if score < d.threshold {
			continue
		}
		// Strictly greater keeps the newer record on ties.
		if best == nil || score > best.Similarity {
			best = &types.DuplicateMatch{
				Record:     rec,
				Similarity: score,
				Reason:     fmt.Sprintf("%s and summary overlap %.2f", reason, score),
			}
		}
	}
	return best
}

func sameCaller(a, b types.CallRecord) string {
	if a.PhoneNumber != "" && a.PhoneNumber == b.PhoneNumber {
		return "same phone number"
	}
	an := strings.TrimSpace(a.CallerName)
	bn := strings.TrimSpace(b.CallerName)
	if an != "" && strings.EqualFold(an, bn) {
		return "same caller name"
	}
	return ""
}
