// Package model keeps the chat application pinned to a desired model tier.
// The UI silently reverts to the fast tier under quota pressure, so the
// controller re-checks the visible label before every round trip and walks
// the model menu until the label converges or the retry budget runs out.
package model

import (
	"regexp"
	"strings"
)

// Tier is a model quality class as surfaced in the UI.
type Tier string

const (
	TierPro  Tier = "pro"
	TierFast Tier = "fast"
)

// proLabelRe matches the Pro tier in free-form UI text. The bare \bPro\b
// alternative covers rebrands that drop the version prefix.
var proLabelRe = regexp.MustCompile(`(?:\bPro\b|1\.5\s*Pro|2\.0\s*Pro)`)

// fastLabelRe matches the fast tier across its localized and versioned names.
var fastLabelRe = regexp.MustCompile(`(Szybki|Fast|Flash|1\.5 Flash|2\.0 Flash)`)

// proMenuItemRe is the strict form used against menu item text, anchored so
// that "Pro" inside longer labels ("Proszę", descriptions) cannot match.
var proMenuItemRe = regexp.MustCompile(`^(Gemini\s+)?(1\.5\s+|2\.0\s+)?Pro\b`)

// disabledResetHintRe extracts the quota-reset phrasing shown on a greyed-out
// Pro item, in either language.
var disabledResetHintRe = regexp.MustCompile(`(Limit|resetuje|resets)`)

// Normalize collapses whitespace in a scraped label before matching.
func Normalize(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// Classify maps a visible model label onto a tier. The Pro pattern is tried
// first because some versioned labels contain both family words.
func Classify(label string) (Tier, bool) {
	label = Normalize(label)
	if label == "" {
		return "", false
	}
	if proLabelRe.MatchString(label) {
		return TierPro, true
	}
	if fastLabelRe.MatchString(label) {
		return TierFast, true
	}
	return "", false
}

// IsProMenuItem reports whether menu item text names the Pro model itself,
// as opposed to mentioning Pro in a description.
func IsProMenuItem(text string) bool {
	return proMenuItemRe.MatchString(Normalize(text))
}

// ResetHint pulls the quota-reset sentence out of disabled-item text. It
// returns the raw matched line untranslated; the caller logs it as-is.
func ResetHint(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = Normalize(line)
		if line != "" && disabledResetHintRe.MatchString(line) {
			return line, true
		}
	}
	return "", false
}
