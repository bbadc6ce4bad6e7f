// Package email holds helpers for working with account e-mail addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayNameFromEmail derives a readable name from the local part of an
// address: "ana.maria-lopez@corp.example" becomes "Ana Lopez". It is used when
// neither the account record nor the identity provider supplies a name.
func DisplayNameFromEmail(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	switch len(parts) {
	case 0:
		return "User"
	case 1:
		return capitalize(parts[0])
	default:
		return capitalize(parts[0]) + " " + capitalize(parts[len(parts)-1])
	}
}

// Domain returns the lower-cased domain of address, or "" when there is none.
func Domain(address string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
