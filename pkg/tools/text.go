package tools

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const wordsPerMinute = 200

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]+`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	nonSlug        = regexp.MustCompile(`[^a-z0-9]+`)
)

// WordCount is the word-counter result
type WordCount struct {
	Words              int `json:"words"`
	Characters         int `json:"characters"`
	CharactersNoSpaces int `json:"charactersNoSpaces"`
	Sentences          int `json:"sentences"`
	Paragraphs         int `json:"paragraphs"`
	ReadingTimeMinutes int `json:"readingTimeMinutes"`
}

func countNonBlank(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

func wordCounter(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}

	words := len(strings.Fields(text))
	noSpaces := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			noSpaces++
		}
	}

	return WordCount{
		Words:              words,
		Characters:         utf8.RuneCountInString(text),
		CharactersNoSpaces: noSpaces,
		Sentences:          countNonBlank(sentenceSplit.Split(text, -1)),
		Paragraphs:         countNonBlank(paragraphSplit.Split(text, -1)),
		ReadingTimeMinutes: int(math.Ceil(float64(words) / wordsPerMinute)),
	}, nil
}

// CharacterCount is the character-counter result
type CharacterCount struct {
	Characters int `json:"characters"`
	Bytes      int `json:"bytes"`
	Letters    int `json:"letters"`
	Digits     int `json:"digits"`
	Spaces     int `json:"spaces"`
	Lines      int `json:"lines"`
}

func characterCounter(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}

	out := CharacterCount{
		Characters: utf8.RuneCountInString(text),
		Bytes:      len(text),
		Lines:      strings.Count(text, "\n") + 1,
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			out.Letters++
		case unicode.IsDigit(r):
			out.Digits++
		case unicode.IsSpace(r):
			out.Spaces++
		}
	}
	return out, nil
}

// caseConversions maps the accepted case names to converters
var caseConversions = map[string]func(string) string{
	"upper":    func(s string) string { return cases.Upper(language.Und).String(s) },
	"lower":    func(s string) string { return cases.Lower(language.Und).String(s) },
	"title":    func(s string) string { return cases.Title(language.English).String(s) },
	"sentence": sentenceCase,
	"camel":    camelCase,
	"snake":    func(s string) string { return strings.Join(lowerWords(s), "_") },
	"kebab":    func(s string) string { return strings.Join(lowerWords(s), "-") },
}

func caseConverter(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}
	target, err := in.String("case", "")
	if err != nil {
		return nil, err
	}

	convert, ok := caseConversions[strings.ToLower(target)]
	if !ok {
		return nil, apierr.Validation("Unsupported case").
			WithDetail("case", "one of upper, lower, title, sentence, camel, snake, kebab")
	}
	return map[string]string{"result": convert(text), "case": strings.ToLower(target)}, nil
}

// sentenceCase lowercases text and capitalizes the first letter of each sentence
func sentenceCase(s string) string {
	lower := []rune(cases.Lower(language.Und).String(s))
	capitalize := true
	for i, r := range lower {
		switch {
		case capitalize && unicode.IsLetter(r):
			lower[i] = unicode.ToUpper(r)
			capitalize = false
		case r == '.' || r == '!' || r == '?':
			capitalize = true
		}
	}
	return string(lower)
}

// splitWords breaks s on non-alphanumerics and lower-to-upper transitions
func splitWords(s string) []string {
	var (
		words   []string
		current []rune
		prev    rune
	)
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
		prev = r
	}
	flush()
	return words
}

func lowerWords(s string) []string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

func camelCase(s string) string {
	words := lowerWords(s)
	title := cases.Title(language.Und)
	for i := 1; i < len(words); i++ {
		words[i] = title.String(words[i])
	}
	return strings.Join(words, "")
}

func slugGenerator(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, terr := transform.String(stripMarks, text)
	if terr != nil {
		return nil, apierr.Validation("Text could not be normalized").WithDetail("text", terr.Error())
	}

	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(folded), "-"), "-")
	return map[string]string{"slug": slug}, nil
}
