package services

import "strings"

// maxKeywordsPerAction caps how many keywords one action contributes to the
// routing store.
const maxKeywordsPerAction = 12

// keywordStopwords are tokens too generic to route on.
var keywordStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "are": true, "was": true, "were": true,
	"has": true, "have": true, "had": true, "not": true, "but": true,
	"all": true, "any": true, "can": true, "get": true, "set": true,
	"into": true, "out": true, "you": true, "your": true, "its": true,
	"use": true, "using": true, "used": true, "will": true, "would": true,
	"should": true, "could": true, "then": true, "than": true, "when": true,
	"where": true, "which": true, "while": true, "also": true, "only": true,
	"true": true, "false": true, "null": true, "none": true, "new": true,
	"please": true, "file": true, "files": true,
}

// extractKeywords tokenizes tool name + input into routing keywords:
// lowercase, split on non-alphanumerics, drop stopwords and tokens shorter
// than three characters, keep at most maxKeywordsPerAction distinct tokens.
// The lowercased tool name itself is always included.
func extractKeywords(toolName, input string) []string {
	seen := map[string]bool{}
	keywords := []string{}

	add := func(token string) bool {
		if len(keywords) >= maxKeywordsPerAction {
			return false
		}
		if len(token) < 3 || keywordStopwords[token] || seen[token] {
			return true
		}
		seen[token] = true
		keywords = append(keywords, token)
		return true
	}

	tool := strings.ToLower(toolName)
	if tool != "" && !seen[tool] {
		seen[tool] = true
		keywords = append(keywords, tool)
	}

	for _, token := range splitAlphanumeric(strings.ToLower(toolName + " " + input)) {
		if !add(token) {
			break
		}
	}
	return keywords
}

func splitAlphanumeric(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		}
		return true
	})
}
