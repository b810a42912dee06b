package events

import "time"

// SanitizeEvent reports a finished sanitization of a story session.
type SanitizeEvent struct { //nolint:govet // fieldalignment: preserving logical field order
	SessionID     string
	Preset        string
	OriginalChars int
	CleanedChars  int
	Applied       bool  // False when the original text was kept
	Error         error // Provider error when not applied
	Timestamp     time.Time
}

// NewSanitizeEvent creates a sanitize event.
func NewSanitizeEvent(sessionID, preset string, original, cleaned int, applied bool, err error) SanitizeEvent {
	return SanitizeEvent{
		SessionID:     sessionID,
		Preset:        preset,
		OriginalChars: original,
		CleanedChars:  cleaned,
		Applied:       applied,
		Error:         err,
		Timestamp:     time.Now(),
	}
}

// Retention returns the share of characters kept, as a percentage.
func (e SanitizeEvent) Retention() float64 {
	if e.OriginalChars == 0 {
		return 0
	}
	return float64(e.CleanedChars) / float64(e.OriginalChars) * 100
}
