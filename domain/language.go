package domain

import (
	"strings"
)

// DefaultLanguage is used whenever detection fails or the text is too short to be detected.
const DefaultLanguage = "en"

// TranslationUnavailable marks a translation slot whose gateway call failed.
const TranslationUnavailable = "[Translation unavailable]"

// UnavailableTranslation is the visible fallback shown instead of a translation.
func UnavailableTranslation(text string) string {
	return TranslationUnavailable + " " + text
}

var languageNames = map[string]string{
	"en": "English", "es": "Spanish", "fr": "French", "de": "German", "it": "Italian",
	"pt": "Portuguese", "ru": "Russian", "ja": "Japanese", "ko": "Korean", "zh": "Chinese",
	"ar": "Arabic", "hi": "Hindi", "bn": "Bengali", "ur": "Urdu", "fa": "Persian",
	"tr": "Turkish", "nl": "Dutch", "sv": "Swedish", "no": "Norwegian", "da": "Danish",
	"fi": "Finnish", "pl": "Polish", "cs": "Czech", "sk": "Slovak", "hu": "Hungarian",
	"ro": "Romanian", "bg": "Bulgarian", "hr": "Croatian", "sr": "Serbian", "sl": "Slovenian",
	"et": "Estonian", "lv": "Latvian", "lt": "Lithuanian", "el": "Greek", "he": "Hebrew",
	"th": "Thai", "vi": "Vietnamese", "id": "Indonesian", "ms": "Malay", "tl": "Filipino",
	"sw": "Swahili", "am": "Amharic", "gu": "Gujarati", "kn": "Kannada", "ml": "Malayalam",
	"mr": "Marathi", "pa": "Punjabi", "ta": "Tamil", "te": "Telugu", "uk": "Ukrainian",
	"be": "Belarusian", "ka": "Georgian", "hy": "Armenian", "az": "Azerbaijani", "kk": "Kazakh",
	"ky": "Kyrgyz", "uz": "Uzbek", "tg": "Tajik", "tk": "Turkmen", "mn": "Mongolian",
	"ne": "Nepali", "si": "Sinhala", "my": "Myanmar", "km": "Khmer", "lo": "Lao",
	"bo": "Tibetan", "dz": "Dzongkha",
}

var languageCodes = func() map[string]string {
	codes := make(map[string]string, len(languageNames))
	for code, name := range languageNames {
		codes[strings.ToLower(name)] = code
	}
	return codes
}()

// NormalizeLanguage turns a code or an English language name into its ISO 639-1 code.
// Unknown values are returned lower-cased so that callers can still compare them.
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if _, ok := languageNames[l]; ok {
		return l
	}
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return l
}

// LanguageName returns the English name of a language code, or the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[NormalizeLanguage(code)]; ok {
		return name
	}
	return code
}

func IsSupportedLanguage(lang string) bool {
	_, ok := languageNames[NormalizeLanguage(lang)]
	return ok
}

// Detection is the outcome of a language detection.
type Detection struct {
	Language   string
	Confidence float64
}
