package ir

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// reservedNameChars are syntax characters of the definition and trigger
// URI grammars. They may not appear in definition or trigger names.
const reservedNameChars = "\"#%&/:<>?\\`{|}"

// NormalizeName returns the NFC form of a name. Names are compared in
// normalized form so visually identical names collide.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// ValidName checks the generic name-validity rule used for definition
// names and named (HTTP) trigger names:
//   - non-empty
//   - no bidi-control characters
//   - no control characters
//   - none of the reserved syntax characters
func ValidName(name string) error {
	if name == "" {
		return NewValidationError("name must not be empty")
	}
	if !norm.NFC.IsNormalString(name) {
		return NewValidationError("name %q is not in normalized form", name)
	}
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Bidi_Control, r):
			return NewValidationError("name %q contains bidi control character %U", name, r)
		case unicode.IsControl(r):
			return NewValidationError("name %q contains control character %U", name, r)
		case strings.ContainsRune(reservedNameChars, r):
			return NewValidationError("name %q contains reserved character %q", name, r)
		}
	}
	return nil
}
