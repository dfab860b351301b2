package articles

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 96

// Slugify derives a URL-safe slug from a title. Accented characters fold
// to their ASCII base via NFKD decomposition, everything outside
// [a-z0-9] becomes a hyphen and runs of hyphens collapse.
func Slugify(title string) string {
	decomposed := norm.NFKD.String(title)

	var b strings.Builder
	b.Grow(len(decomposed))
	lastHyphen := true
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
