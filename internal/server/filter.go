package server

import (
	"crypto/sha256"
	"fmt"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/glob"
)

// PrivacyFilter applies masking and process-pattern filtering to focus
// sessions before they reach a query-layer client. The zero value is a
// no-op filter. This is a minimal analog of the masking idea: this domain
// has no working-directory concept, so filtering is scoped to window
// titles and blacklisted process patterns instead.
type PrivacyFilter struct {
	MaskWindowTitles bool
	BlockedPatterns  []string
}

// IsAllowed reports whether a session for the given process should be
// broadcast at all.
func (f *PrivacyFilter) IsAllowed(process string) bool {
	for _, pattern := range f.BlockedPatterns {
		if glob.Match(pattern, process) {
			return false
		}
	}
	return true
}

// ApplySession returns a masked copy of sess, or nil if sess is blocked
// outright. The input is never modified.
func (f *PrivacyFilter) ApplySession(sess *activity.FocusSession) *activity.FocusSession {
	if sess == nil || !f.IsAllowed(sess.Process) {
		return nil
	}
	masked := sess.Clone()
	if f.MaskWindowTitles && masked.Title != "" {
		masked.Title = shortHash(masked.Title)
	}
	return masked
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskWindowTitles && len(f.BlockedPatterns) == 0
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
