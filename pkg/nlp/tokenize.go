package nlp

import (
	"regexp"
	"strings"
)

var tokenRgx = regexp.MustCompile(`[\p{L}\p{N}]+`)

type token struct {
	text       string
	start, end int
}

func tokenize(text string, lowercase bool) []token {
	locs := tokenRgx.FindAllStringIndex(text, -1)
	tokens := make([]token, 0, len(locs))
	for _, loc := range locs {
		t := text[loc[0]:loc[1]]
		if lowercase {
			t = strings.ToLower(t)
		}
		tokens = append(tokens, token{text: t, start: loc[0], end: loc[1]})
	}
	return tokens
}

func joinTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

// PrepareName normalises a surface form into the key names are stored under
func PrepareName(name string, lowercase bool) string {
	return joinTokens(tokenize(name, lowercase))
}
