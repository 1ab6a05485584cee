// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// abbreviations never end a sentence. Keys are lowercase without the
// trailing period.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true, "jr": true, "sr": true,
	"fig": true, "figs": true, "eq": true, "eqs": true, "ref": true, "refs": true,
	"i.e": true, "e.g": true, "vs": true, "cf": true, "etc": true,
	"approx": true, "ca": true, "no": true, "vol": true, "pp": true,
}

// paragraphs splits raw text on blank lines and normalizes whitespace in
// each paragraph. Empty paragraphs are dropped.
func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphSep.Split(text, -1) {
		if p = normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentences splits whitespace-normalized text after words ending in
// terminal punctuation when the next word opens like a new sentence.
func sentences(text string) []string {
	words := strings.Fields(text)
	var out []string
	start := 0
	for i := 0; i < len(words)-1; i++ {
		if endsSentence(words, i) && opensSentence(words[i+1]) {
			out = append(out, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	if start < len(words) {
		out = append(out, strings.Join(words[start:], " "))
	}
	return out
}

func endsSentence(words []string, i int) bool {
	w := strings.TrimRight(words[i], `"'”’)]`)
	if w == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(w)
	if last != '.' && last != '!' && last != '?' {
		return false
	}
	if last != '.' {
		return true
	}
	stem := strings.ToLower(strings.TrimSuffix(w, "."))
	stem = strings.TrimLeft(stem, `("[`)
	if abbreviations[stem] {
		return false
	}
	if stem == "al" && i > 0 && strings.EqualFold(words[i-1], "et") {
		return false
	}
	return true
}

func opensSentence(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '[' || r == '(' || r == '"'
}

// splitWords packs words greedily into pieces of at most budget tokens. A
// single word larger than budget becomes its own piece.
func splitWords(tok Tokenizer, text string, budget int) []string {
	var out []string
	var cur []string
	for _, w := range strings.Fields(text) {
		if len(cur) > 0 && tok.Count(strings.Join(append(cur, w), " ")) > budget {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0:0]
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
