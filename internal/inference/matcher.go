package inference

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// wordIndex returns the byte offset of the first whole-word, case-insensitive
// occurrence of word in text, or -1. Any rune that is not a letter or digit
// is a word boundary, so "firebase" matches "firebase/app" and
// "firebase_admin" but not "firebaseui".
func wordIndex(text, word string) int {
	if word == "" {
		return -1
	}
	lowerText := strings.ToLower(text)
	lowerWord := strings.ToLower(word)

	first, _ := utf8.DecodeRuneInString(lowerWord)
	last, _ := utf8.DecodeLastRuneInString(lowerWord)
	checkBefore := isAlnum(first)
	checkAfter := isAlnum(last)

	from := 0
	for from <= len(lowerText) {
		idx := strings.Index(lowerText[from:], lowerWord)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(lowerWord)

		ok := true
		if checkBefore && idx > 0 {
			r, _ := utf8.DecodeLastRuneInString(lowerText[:idx])
			ok = !isAlnum(r)
		}
		if ok && checkAfter && end < len(lowerText) {
			r, _ := utf8.DecodeRuneInString(lowerText[end:])
			ok = !isAlnum(r)
		}
		if ok {
			return idx
		}
		_, size := utf8.DecodeRuneInString(lowerText[idx:])
		from = idx + size
	}
	return -1
}

// containsWord reports a whole-word, case-insensitive match
func containsWord(text, word string) bool {
	return wordIndex(text, word) >= 0
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// identifierTokens splits an identifier on case changes and separators:
// "createStripeCustomer" -> [create stripe customer],
// "HTTPServer.get_user" -> [http server get user].
func identifierTokens(name string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		if !isAlnum(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return tokens
}

// hasToken reports whether any identifier token equals word, ignoring case
func hasToken(identifier, word string) bool {
	word = strings.ToLower(word)
	for _, t := range identifierTokens(identifier) {
		if t == word {
			return true
		}
	}
	return false
}
