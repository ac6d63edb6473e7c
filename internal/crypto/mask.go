package crypto

import "strings"

const maskRune = '*'

// fullyMasked is returned when the value is too short to expose any suffix.
const fullyMasked = "******"

// MaskForDisplay replaces all but the last visibleSuffixLen characters with a
// mask character. Display and log output only - never a storage format.
func MaskForDisplay(value string, visibleSuffixLen int) string {
	runes := []rune(value)
	if visibleSuffixLen < 0 {
		visibleSuffixLen = 0
	}
	if len(runes) <= visibleSuffixLen {
		return fullyMasked
	}
	var b strings.Builder
	b.Grow(len(runes))
	for i := 0; i < len(runes)-visibleSuffixLen; i++ {
		b.WriteRune(maskRune)
	}
	b.WriteString(string(runes[len(runes)-visibleSuffixLen:]))
	return b.String()
}
