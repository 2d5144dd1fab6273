package tokenizer

import (
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// irregularForms short-circuits words whose stem the extended Porter
// rules would otherwise mangle.
var irregularForms = map[string]string{
	"sky":      "sky",
	"skies":    "sky",
	"dying":    "die",
	"lying":    "lie",
	"tying":    "tie",
	"news":     "news",
	"innings":  "inning",
	"inning":   "inning",
	"outings":  "outing",
	"outing":   "outing",
	"cannings": "canning",
	"canning":  "canning",
	"howe":     "howe",
	"proceed":  "proceed",
	"exceed":   "exceed",
	"succeed":  "succeed",
}

// Stem reduces a single lowercased word to the stem the index was built
// with: the Porter algorithm in its NLTK-extended form.
//
// porterstemmer implements the classic algorithm. The extended form differs
// in the irregular forms above, in four letter -ies/-ied words, in when a
// trailing y becomes i, and in two step 2 rules (alli applied first, fulli).
// Step 1 is recomputed here in both flavours to detect the words where they
// diverge; everything else is delegated to porterstemmer.
func Stem(word string) string {
	if stem, ok := irregularForms[word]; ok {
		return stem
	}
	w := []rune(word)
	if len(w) <= 2 {
		return word
	}

	ext := step1(w, true)
	if string(ext) != string(step1(w, false)) {
		// Divergent words end in -ie, a vowel followed by y, or a
		// consonant-only stem followed by i. Steps 2 to 5 leave all three
		// untouched.
		return string(ext)
	}

	n := len(ext)
	switch {
	case hasSuffix(ext, "alli") && measure(ext[:n-4]) > 0:
		return porterstemmer.StemString(string(ext[:n-4]) + "al")
	case hasSuffix(ext, "fulli") && measure(ext[:n-5]) > 0:
		return porterstemmer.StemString(string(ext[:n-5]) + "ful")
	}
	return porterstemmer.StemString(word)
}

func step1(w []rune, extended bool) []rune {
	return step1c(step1b(step1a(w, extended), extended), extended)
}

func step1a(w []rune, extended bool) []rune {
	switch {
	case extended && len(w) == 4 && hasSuffix(w, "ies"):
		return w[:3]
	case hasSuffix(w, "sses"), hasSuffix(w, "ies"):
		return w[:len(w)-2]
	case hasSuffix(w, "ss"):
		return w
	case hasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

func step1b(w []rune, extended bool) []rune {
	if extended && hasSuffix(w, "ied") {
		if len(w) == 4 {
			return w[:3]
		}
		return w[:len(w)-2]
	}
	if hasSuffix(w, "eed") {
		if measure(w[:len(w)-3]) > 0 {
			return w[:len(w)-1]
		}
		return w
	}

	var stem []rune
	switch {
	case hasSuffix(w, "ed"):
		stem = w[:len(w)-2]
	case hasSuffix(w, "ing"):
		stem = w[:len(w)-3]
	default:
		return w
	}
	if !containsVowel(stem) {
		return w
	}

	last := stem[len(stem)-1]
	switch {
	case hasSuffix(stem, "at"), hasSuffix(stem, "bl"), hasSuffix(stem, "iz"):
		return withSuffix(stem, 'e')
	case last != 'l' && last != 's' && last != 'z' && endsDoubleConsonant(stem):
		return stem[:len(stem)-1]
	case measure(stem) == 1 && endsCVC(stem):
		return withSuffix(stem, 'e')
	}
	return stem
}

func step1c(w []rune, extended bool) []rune {
	if len(w) < 2 || w[len(w)-1] != 'y' {
		return w
	}
	stem := w[:len(w)-1]
	replace := containsVowel(stem)
	if extended {
		replace = len(stem) > 1 && isConsonant(stem, len(stem)-1)
	}
	if !replace {
		return w
	}
	return withSuffix(stem, 'i')
}

func isConsonant(w []rune, i int) bool {
	switch w[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	case 'y':
		return i == 0 || !isConsonant(w, i-1)
	}
	return true
}

// measure counts the vowel-consonant sequences in w.
func measure(w []rune) int {
	m, vowel := 0, false
	for i := range w {
		c := isConsonant(w, i)
		if c && vowel {
			m++
		}
		vowel = !c
	}
	return m
}

func containsVowel(w []rune) bool {
	for i := range w {
		if !isConsonant(w, i) {
			return true
		}
	}
	return false
}

func endsDoubleConsonant(w []rune) bool {
	n := len(w)
	return n >= 2 && w[n-1] == w[n-2] && isConsonant(w, n-1)
}

func endsCVC(w []rune) bool {
	n := len(w)
	if n < 3 {
		return false
	}
	switch w[n-1] {
	case 'w', 'x', 'y':
		return false
	}
	return isConsonant(w, n-3) && !isConsonant(w, n-2) && isConsonant(w, n-1)
}

func hasSuffix(w []rune, suffix string) bool {
	return strings.HasSuffix(string(w), suffix)
}

// withSuffix copies stem before appending so the caller's backing array is
// never written through.
func withSuffix(stem []rune, r rune) []rune {
	out := make([]rune, len(stem), len(stem)+1)
	copy(out, stem)
	return append(out, r)
}
