package diff

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagever/canon"
)

// TextKeys is the priority list ExtractText consults.
var TextKeys = []string{"text", "jcr:title", "title"}

var (
	soleTag   = regexp.MustCompile(`^<[^>]+>$`)
	letterRun = regexp.MustCompile(`\p{L}{2,}`)
	spaceRun  = regexp.MustCompile(`[\s\p{Z}]+`)
)

// ExtractText returns the first non-blank string found under TextKeys,
// trimmed, or "" when there is none.
func ExtractText(content *canon.Map) string {
	for _, key := range TextKeys {
		s, ok := content.GetString(key)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// IsMeaningful reports whether s carries translatable text: non-blank, not a
// lone HTML tag, at least two characters, and not made only of digits,
// punctuation and whitespace.
func IsMeaningful(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || soleTag.MatchString(s) {
		return false
	}
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// CleanText strips markup from s, decodes entities and collapses whitespace.
// Script and style bodies are dropped.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(spaceRun.ReplaceAllString(sb.String(), " "))
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// IsTranslationWorthy reports whether cleaned text is long enough and holds
// at least one word of two or more letters.
func IsTranslationWorthy(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 3 {
		return false
	}
	return letterRun.MatchString(s)
}
