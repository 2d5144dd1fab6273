// Package tokenizer normalises raw query text into the stemmed terms the
// index was built with. It lower-cases input, extracts word tokens, removes
// stop-words, and applies the Porter stemmer with the NLTK extensions.
package tokenizer

import (
	"regexp"
	"strings"
)

// wordPattern matches a leading word, hashtag or mention character followed
// by 2-24 word characters, each optionally preceded by one apostrophe or
// hyphen. Tokens are therefore 3 to 49 bytes of ASCII, more for non-ASCII.
var wordPattern = regexp.MustCompile(`[#@\p{L}\p{N}_](?:['\-]?[\p{L}\p{N}_]){2,24}`)

// Tokenize breaks a query into an ordered slice of stemmed, lowercased
// terms with stop-words removed. Duplicates are kept in order. The result
// is never nil.
func Tokenize(query string) []string {
	words := extract(strings.ToLower(query))
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if IsStopword(word) {
			continue
		}
		tokens = append(tokens, Stem(word))
	}
	return tokens
}

// IsStopword reports whether the lowercased word is dropped before
// stemming.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

func extract(text string) []string {
	return wordPattern.FindAllString(text, -1)
}
