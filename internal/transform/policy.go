package transform

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// maxInputChars is the truncation ceiling applied before prompting.
	maxInputChars = 100000

	// minOutputTokens floors the adaptive output budget.
	minOutputTokens = 1000

	// defaultMaxOutputTokens is the provider ceiling when config doesn't
	// override it.
	defaultMaxOutputTokens = 8192
)

// truncateInput caps text at maxInputChars and reports whether anything
// was cut; the flag is surfaced to the model in the prompt. The cut backs
// off to a rune boundary so the provider never receives a split rune.
func truncateInput(text string) (string, bool) {
	if len(text) <= maxInputChars {
		return text, false
	}
	cut := maxInputChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}

// outputBudget computes the adaptive completion budget:
// clamp(ceil(len/4) * 1.2, minOutputTokens, providerMax). The /4 is the
// usual chars-per-token estimate; the 1.2 leaves headroom for formatting
// markup the model adds.
func outputBudget(textLen, providerMax int) int {
	budget := int(math.Ceil(float64(textLen)/4) * 1.2)
	if budget < minOutputTokens {
		budget = minOutputTokens
	}
	if budget > providerMax {
		budget = providerMax
	}
	return budget
}

// languageNames maps common codes and lowercase names to canonical
// capitalized display names.
var languageNames = map[string]string{
	"en": "English", "english": "English",
	"es": "Spanish", "spanish": "Spanish",
	"fr": "French", "french": "French",
	"de": "German", "german": "German",
	"it": "Italian", "italian": "Italian",
	"pt": "Portuguese", "portuguese": "Portuguese",
	"nl": "Dutch", "dutch": "Dutch",
	"ru": "Russian", "russian": "Russian",
	"ja": "Japanese", "japanese": "Japanese",
	"zh": "Chinese", "chinese": "Chinese",
	"ko": "Korean", "korean": "Korean",
	"ar": "Arabic", "arabic": "Arabic",
	"hi": "Hindi", "hindi": "Hindi",
}

// NormalizeLanguage maps common codes/names to a canonical display name.
// Unrecognized input passes through unchanged; it is never an error.
func NormalizeLanguage(lang string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return name
	}
	return lang
}

const truncationNote = "Note: the input was truncated at the character limit; work with what is present."

func formatPrompt(text string, truncated bool) (system, user string) {
	system = "You are a document formatting assistant. Reformat the extracted " +
		"document text into clean, readable prose. Fix broken line wraps, join " +
		"hyphenated words, and preserve paragraph structure. Return only the " +
		"formatted text."
	if truncated {
		system += "\n" + truncationNote
	}
	return system, text
}

func translatePrompt(text, language string, truncated bool) (system, user string) {
	system = fmt.Sprintf("You are a translation assistant. Translate the "+
		"following document text into %s. Preserve formatting and paragraph "+
		"structure. Return only the translated text.", language)
	if truncated {
		system += "\n" + truncationNote
	}
	return system, text
}
