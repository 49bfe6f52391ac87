// Package lang decides the language mode of a user message. The result steers
// which system prompt variant is sent to the completion provider.
package lang

import (
	"strings"
	"unicode"
)

// Mode is a detected language mode.
type Mode string

const (
	English  Mode = "english"
	Hindi    Mode = "hindi"
	Hinglish Mode = "hinglish"
)

// hinglishMarkers are romanized Hindi function words. Substring matching is
// intentional: it catches inflected forms at the cost of rare false positives.
var hinglishMarkers = []string{"kya", "hai", "kaise", "tum", "haan", "me", "nhi", "hnn"}

// Detect classifies text into a language mode. Rules are ordered and the first
// match wins: any Devanagari rune means hindi, any marker word means hinglish,
// everything else (including the empty string) is english.
func Detect(text string) Mode {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return Hindi
		}
	}

	lower := strings.ToLower(text)
	for _, marker := range hinglishMarkers {
		if strings.Contains(lower, marker) {
			return Hinglish
		}
	}

	return English
}
