package utils

import (
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[<>"\\|?*\x00-\x1F]`)

// CleanName turns a product title into a file name stem: colons become
// underscores, slashes are dropped, other characters that are unsafe on
// common filesystems become underscores.
func CleanName(input string) string {
	cleaned := strings.TrimSpace(input)
	cleaned = strings.ReplaceAll(cleaned, ":", "_")
	cleaned = strings.ReplaceAll(cleaned, "/", "")
	cleaned = unsafeNameChars.ReplaceAllString(cleaned, "_")
	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ".")

	return cleaned
}
