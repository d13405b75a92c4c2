package catalog

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const unknownLanguage = "Unknown"

// languageNames maps tokens commonly found in track titles to display names.
// Title text is free-form, so this covers the names and ISO codes that show
// up in the wild rather than attempting to be exhaustive.
var languageNames = map[string]string{
	"english":    "English",
	"eng":        "English",
	"japanese":   "Japanese",
	"jpn":        "Japanese",
	"spanish":    "Spanish",
	"spa":        "Spanish",
	"esp":        "Spanish",
	"french":     "French",
	"fre":        "French",
	"fra":        "French",
	"german":     "German",
	"ger":        "German",
	"deu":        "German",
	"italian":    "Italian",
	"ita":        "Italian",
	"portuguese": "Portuguese",
	"por":        "Portuguese",
	"russian":    "Russian",
	"rus":        "Russian",
	"korean":     "Korean",
	"kor":        "Korean",
	"chinese":    "Chinese",
	"chi":        "Chinese",
	"zho":        "Chinese",
	"mandarin":   "Chinese",
	"cantonese":  "Cantonese",
	"dutch":      "Dutch",
	"dut":        "Dutch",
	"nld":        "Dutch",
	"swedish":    "Swedish",
	"swe":        "Swedish",
	"norwegian":  "Norwegian",
	"nor":        "Norwegian",
	"danish":     "Danish",
	"dan":        "Danish",
	"finnish":    "Finnish",
	"fin":        "Finnish",
	"polish":     "Polish",
	"pol":        "Polish",
	"czech":      "Czech",
	"cze":        "Czech",
	"ces":        "Czech",
	"hungarian":  "Hungarian",
	"hun":        "Hungarian",
	"greek":      "Greek",
	"gre":        "Greek",
	"ell":        "Greek",
	"turkish":    "Turkish",
	"tur":        "Turkish",
	"arabic":     "Arabic",
	"ara":        "Arabic",
	"hebrew":     "Hebrew",
	"heb":        "Hebrew",
	"hindi":      "Hindi",
	"hin":        "Hindi",
	"thai":       "Thai",
	"tha":        "Thai",
	"vietnamese": "Vietnamese",
	"vie":        "Vietnamese",
	"indonesian": "Indonesian",
	"ind":        "Indonesian",
	"ukrainian":  "Ukrainian",
	"ukr":        "Ukrainian",
	"romanian":   "Romanian",
	"rum":        "Romanian",
	"ron":        "Romanian",
}

// languageTokenRe matches a known language token at a word boundary inside a
// free-text title, e.g. "Commentary (eng)" or "Signs & Songs [ENG]".
var languageTokenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(languageTokenAlternation(), "|") + `)\b`)

func languageTokenAlternation() []string {
	tokens := make([]string, 0, len(languageNames))
	for token := range languageNames {
		tokens = append(tokens, regexp.QuoteMeta(token))
	}
	return tokens
}

// resolveLanguage derives a display-ready language name for a stream.
// Priority: explicit tag fields, then a known name spelled out in the title,
// then a word-boundary token match in the title, then "Unknown".
func resolveLanguage(tags map[string]string, title string) string {
	for _, key := range []string{"language", "lang", "LANGUAGE", "Language"} {
		raw := strings.TrimSpace(tags[key])
		if raw == "" || strings.EqualFold(raw, "und") {
			continue
		}
		if name := tagDisplayName(raw); name != "" {
			return name
		}
	}

	lower := strings.ToLower(title)
	if lower != "" {
		// Full language names are unambiguous as substrings; short ISO codes
		// need a word boundary so "Finnish" does not read as "fin" + noise.
		for token, name := range languageNames {
			if len(token) >= 5 && strings.Contains(lower, token) {
				return name
			}
		}
		if m := languageTokenRe.FindString(title); m != "" {
			return languageNames[strings.ToLower(m)]
		}
	}

	return unknownLanguage
}

// tagDisplayName maps an ISO language tag ("eng", "ja", "pt-BR") to its
// English display name.
func tagDisplayName(raw string) string {
	if name, ok := languageNames[strings.ToLower(raw)]; ok {
		return name
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return ""
	}
	name := display.English.Languages().Name(tag)
	if name == "" || strings.EqualFold(name, raw) {
		return ""
	}
	return name
}
