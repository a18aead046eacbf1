// Package validate checks form-submitted fields against the product's
// fixed rule set. Validation is pure: rules accumulate every violation
// into a Result instead of stopping at the first, so a caller can display
// all problems at once.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field limits.
const (
	TitleMinLength    = 1
	TitleMaxLength    = 200
	ContentMaxLength  = 50000
	MaxTags           = 20
	TagMaxLength      = 50
	EmailMaxLength    = 254
	PasswordMinLength = 8
	PasswordMaxLength = 128
)

// tagPattern permits letters (Latin and Han), digits, spaces, underscore
// and dash, 1-50 characters.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9\p{Han}\s_-]{1,50}$`)

// nodeTypes is the closed set of knowledge-node types, including legacy
// and localized aliases mapped to their canonical form.
var nodeTypes = map[string]string{
	"concept":   "concept",
	"fact":      "fact",
	"question":  "question",
	"idea":      "idea",
	"reference": "reference",

	// Legacy alias kept for nodes created before the type rename.
	"note": "fact",

	// Localized forms accepted from the UI.
	"概念": "concept",
	"事實": "fact",
	"問題": "question",
	"想法": "idea",
	"參考": "reference",
}

// contentTypes is the closed set of node content types with aliases.
var contentTypes = map[string]string{
	"text":     "text",
	"markdown": "markdown",
	"link":     "link",
	"image":    "image",
	"file":     "file",

	"md":  "markdown",
	"url": "link",
}

// Input carries the fields of a form submission. Pointer fields
// distinguish "absent" from "present but empty": absent fields are not
// validated.
type Input struct {
	Title       *string
	Content     *string
	Tags        []string
	NodeType    *string
	ContentType *string
	Email       *string
	Password    *string
}

// Result accumulates validation errors for one submission. Request-scoped:
// created and discarded within a single guarded call.
type Result struct {
	Errors []string
}

// OK reports whether no rule was violated.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

func (r *Result) add(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validate checks every present field and returns all violations in one
// pass.
func Validate(in Input) Result {
	var res Result

	if in.Title != nil {
		checkTitle(&res, *in.Title)
	}
	if in.Content != nil {
		checkContent(&res, *in.Content)
	}
	if in.Tags != nil {
		res.Errors = append(res.Errors, ValidateTags(in.Tags)...)
	}
	if in.NodeType != nil {
		if _, ok := NodeType(*in.NodeType); !ok {
			res.add("node type %q is not recognized", *in.NodeType)
		}
	}
	if in.ContentType != nil {
		if _, ok := ContentType(*in.ContentType); !ok {
			res.add("content type %q is not recognized", *in.ContentType)
		}
	}
	if in.Email != nil {
		res.Errors = append(res.Errors, ValidateEmail(*in.Email)...)
	}
	if in.Password != nil {
		res.Errors = append(res.Errors, ValidatePassword(*in.Password)...)
	}

	return res
}

func checkTitle(res *Result, title string) {
	n := utf8.RuneCountInString(title)
	if n < TitleMinLength {
		res.add("title must not be empty")
	}
	if n > TitleMaxLength {
		res.add("title must be at most %d characters, got %d", TitleMaxLength, n)
	}
}

func checkContent(res *Result, content string) {
	if n := utf8.RuneCountInString(content); n > ContentMaxLength {
		res.add("content must be at most %d characters, got %d", ContentMaxLength, n)
	}
}

// ValidateTags checks the tag list. Exceeding the count limit is reported
// once, independent of individual tag validity.
func ValidateTags(tags []string) []string {
	var errs []string

	if len(tags) > MaxTags {
		errs = append(errs, fmt.Sprintf("at most %d tags are allowed, got %d", MaxTags, len(tags)))
		return errs
	}

	for i, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			errs = append(errs, fmt.Sprintf("tag %d is blank", i+1))
			continue
		}
		if !tagPattern.MatchString(tag) {
			errs = append(errs, fmt.Sprintf("tag %q contains invalid characters or exceeds %d characters", tag, TagMaxLength))
		}
	}
	return errs
}

// ValidateEmail checks address shape and length.
func ValidateEmail(email string) []string {
	var errs []string

	if len(email) > EmailMaxLength {
		errs = append(errs, fmt.Sprintf("email must be at most %d characters", EmailMaxLength))
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs = append(errs, "email address is not valid")
	}
	return errs
}

// ValidatePassword checks password strength and returns an itemized reason
// for every unmet requirement, not just a boolean.
func ValidatePassword(password string) []string {
	var errs []string

	if utf8.RuneCountInString(password) < PasswordMinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", PasswordMinLength))
	}
	if utf8.RuneCountInString(password) > PasswordMaxLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d characters", PasswordMaxLength))
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasLower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if !hasUpper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if !hasDigit {
		errs = append(errs, "password must contain a digit")
	}
	if !hasSpecial {
		errs = append(errs, "password must contain a special character")
	}
	return errs
}

// NodeType resolves a node type or one of its aliases to the canonical
// form.
func NodeType(s string) (string, bool) {
	canonical, ok := nodeTypes[strings.ToLower(strings.TrimSpace(s))]
	return canonical, ok
}

// ContentType resolves a content type or alias to the canonical form.
func ContentType(s string) (string, bool) {
	canonical, ok := contentTypes[strings.ToLower(strings.TrimSpace(s))]
	return canonical, ok
}
