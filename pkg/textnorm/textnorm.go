// Package textnorm provides the deterministic text normalization shared
// by the indexing pipeline and the search service. Both sides must fold
// text identically or alias lookups and literal verification drift.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	tokenRe    = regexp.MustCompile(`[a-z0-9]+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
)

// AccentFold lowercases the input and strips combining marks, so that
// "Taquería" and "taqueria" fold to the same string.
func AccentFold(text string) string {
	decomposed := norm.NFKD.String(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize accent-folds, strips everything but alphanumerics and
// spaces, and collapses whitespace. Returns "" for degenerate input.
func Normalize(text string) string {
	folded := AccentFold(text)
	cleaned := nonAlnumRe.ReplaceAllString(folded, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// Singularize applies a heuristic English singular form. Short tokens
// and double-s endings are left alone.
func Singularize(token string) string {
	if len(token) <= 3 {
		return token
	}
	if strings.HasSuffix(token, "ies") && len(token) > 4 {
		return token[:len(token)-3] + "y"
	}
	if strings.HasSuffix(token, "es") && len(token) > 4 {
		return token[:len(token)-2]
	}
	if strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return token[:len(token)-1]
	}
	return token
}

// Tokens returns the plain alphanumeric tokens of the normalized text.
func Tokens(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	return tokenRe.FindAllString(normalized, -1)
}

// TokensWithSingulars returns each token followed by its singular form
// when the two differ. This roughly doubles the token count but lets
// plural surface forms match singular aliases and vice versa.
func TokensWithSingulars(text string) []string {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(tokens))
	for _, token := range tokens {
		out = append(out, token)
		if singular := Singularize(token); singular != token {
			out = append(out, singular)
		}
	}
	return out
}

// NGrams returns all contiguous windows of width minN..maxN over the
// token list, joined by single spaces. maxN is capped at the token
// count.
func NGrams(tokens []string, minN, maxN int) []string {
	if len(tokens) == 0 {
		return nil
	}
	if minN < 1 {
		minN = 1
	}
	maxWidth := maxN
	if maxWidth > len(tokens) {
		maxWidth = len(tokens)
	}
	if maxWidth < minN {
		maxWidth = minN
	}
	var out []string
	for width := minN; width <= maxWidth; width++ {
		for start := 0; start+width <= len(tokens); start++ {
			out = append(out, strings.Join(tokens[start:start+width], " "))
		}
	}
	return out
}
