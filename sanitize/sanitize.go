// Package sanitize provides deterministic, idempotent transforms that
// strip disallowed markup and characters from rich text, plain text, URLs
// and filenames before they reach storage or rendering.
package sanitize

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FilenameMaxLength caps sanitized filenames.
const FilenameMaxLength = 255

// allowedURLSchemes are the only link targets rich text may carry.
var allowedURLSchemes = []string{"http", "https", "mailto"}

// htmlPolicy allows the small formatting subset the editor produces:
// paragraphs, line breaks, emphasis, headings, lists, blockquotes, code
// and links. Links keep only href/target/rel and only http(s)/mailto
// targets. Everything else is stripped, not escaped into text.
var htmlPolicy = buildHTMLPolicy()

// textPolicy strips all markup.
var textPolicy = bluemonday.StrictPolicy()

func buildHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br",
		"em", "strong", "i", "b", "u",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "code", "pre",
	)
	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowURLSchemes(allowedURLSchemes...)
	p.RequireParseableURLs(true)
	return p
}

// HTML sanitizes rich text down to the allowed tag subset. Disallowed
// tags and attributes are removed entirely; script and style contents are
// dropped, not leaked as text. Idempotent: sanitizing sanitized input is
// a no-op.
func HTML(s string) string {
	return htmlPolicy.Sanitize(s)
}

// Text strips all markup and returns plain text with entities decoded, so
// the result carries no escaping artifacts.
func Text(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(s))
}

// URL parses the string as a URL and returns it unchanged if its scheme
// is http, https or mailto. Anything else, including unparseable input
// and scheme-relative tricks, yields the empty string.
func URL(s string) string {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	for _, allowed := range allowedURLSchemes {
		if scheme == allowed {
			return u.String()
		}
	}
	return ""
}

var (
	// filenameDisallowed matches every character not permitted in a
	// stored filename: anything outside Latin letters, Han, digits, dot,
	// dash, underscore. Path separators fall out with the rest.
	filenameDisallowed = regexp.MustCompile(`[^A-Za-z0-9\p{Han}._-]+`)

	// dotRuns collapses consecutive dots so ".." never survives into a
	// stored name (path-traversal defense).
	dotRuns = regexp.MustCompile(`\.{2,}`)
)

// Filename reduces an upload name to a safe subset: letters (Latin and
// Han), digits, dot, dash, underscore. Runs of dots collapse to one and
// the result is truncated to FilenameMaxLength.
func Filename(s string) string {
	out := filenameDisallowed.ReplaceAllString(s, "")
	out = dotRuns.ReplaceAllString(out, ".")
	if runes := []rune(out); len(runes) > FilenameMaxLength {
		out = string(runes[:FilenameMaxLength])
	}
	return out
}
