// Package validation checks user input for URL shortening requests.
// All functions are pure and report every problem found for a field.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shortclick/shortclick/internal/model"
)

// Validation errors. FieldError wraps one of these.
var (
	ErrEmptyURL            = errors.New("url is required")
	ErrMalformedURL        = errors.New("malformed url")
	ErrInvalidFormat       = errors.New("invalid short code format")
	ErrDuplicate           = errors.New("short code already taken")
	ErrReserved            = errors.New("short code is reserved")
	ErrNotAPositiveInteger = errors.New("validity is not a positive integer")
	ErrExceedsMaximum      = errors.New("validity exceeds maximum")
)

// Field names reported in FieldError.
const (
	FieldOriginalURL     = "original_url"
	FieldShortCode       = "custom_short_code"
	FieldValidityMinutes = "validity_minutes"
)

const (
	MinShortCodeLength = 4
	MaxShortCodeLength = 10

	// MaxValidityMinutes is one year.
	MaxValidityMinutes = 525600
)

// reservedCodes are paths served by the application itself at the root, where
// a short code of the same name could never redirect.
var reservedCodes = map[string]struct{}{
	"healthz": {},
	"readyz":  {},
	"metrics": {},
}

var (
	shortCodeCharset = regexp.MustCompile(`^[a-zA-Z0-9]*$`)
	hostnamePattern  = regexp.MustCompile(`(?i)^([0-9a-z-]+\.)+[a-z]{2,63}$`)
	pathPattern      = regexp.MustCompile(`^[/\w.~%!$&'()*+,;=:@-]*$`)
)

// FieldError is a single user-correctable problem with one input field.
type FieldError struct {
	Field   string
	Code    string
	Message string
	err     error
}

func (e *FieldError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel for errors.Is.
func (e *FieldError) Unwrap() error {
	return e.err
}

func newFieldError(field string, sentinel error, message string) *FieldError {
	return &FieldError{
		Field:   field,
		Code:    codeFor(sentinel),
		Message: message,
		err:     sentinel,
	}
}

func codeFor(err error) string {
	switch err {
	case ErrEmptyURL:
		return "EMPTY_URL"
	case ErrMalformedURL:
		return "MALFORMED_URL"
	case ErrInvalidFormat:
		return "INVALID_FORMAT"
	case ErrDuplicate:
		return "DUPLICATE"
	case ErrReserved:
		return "RESERVED"
	case ErrNotAPositiveInteger:
		return "NOT_A_POSITIVE_INTEGER"
	case ErrExceedsMaximum:
		return "EXCEEDS_MAXIMUM"
	default:
		return "INVALID"
	}
}

// Result collects the errors found for one or more fields.
type Result struct {
	Errors []*FieldError
}

// Valid returns true if no errors were reported.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Messages returns the human-readable messages in report order.
func (r Result) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

// Err returns the errors as a plain error slice.
func (r Result) Err() []error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errs
}

func (r *Result) add(field string, sentinel error, message string) {
	r.Errors = append(r.Errors, newFieldError(field, sentinel, message))
}

func (r *Result) merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
}

// ValidateURL checks that raw is an absolute http(s) URL with a dotted host.
func ValidateURL(raw string) Result {
	var res Result

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.add(FieldOriginalURL, ErrEmptyURL, "URL is required")
		return res
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		res.add(FieldOriginalURL, ErrMalformedURL, "Please enter a valid URL (must include http:// or https://)")
		return res
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		res.add(FieldOriginalURL, ErrMalformedURL, "Please enter a valid URL (must include http:// or https://)")
		return res
	}

	host := parsed.Hostname()
	if host == "" {
		res.add(FieldOriginalURL, ErrMalformedURL, "URL must include a host")
	} else if !hostnamePattern.MatchString(host) {
		res.add(FieldOriginalURL, ErrMalformedURL, fmt.Sprintf("URL host %q is not a valid domain name", host))
	}

	if parsed.User != nil {
		res.add(FieldOriginalURL, ErrMalformedURL, "URL must not contain credentials")
	}

	if !pathPattern.MatchString(parsed.EscapedPath()) {
		res.add(FieldOriginalURL, ErrMalformedURL, "URL path contains invalid characters")
	}

	return res
}

// ValidateShortCode checks an optional custom short code. An empty code is
// valid and defers to generation. existing holds lower-cased taken codes.
func ValidateShortCode(code string, existing map[string]struct{}) Result {
	var res Result

	if code == "" {
		return res
	}

	if n := len(code); n < MinShortCodeLength || n > MaxShortCodeLength {
		res.add(FieldShortCode, ErrInvalidFormat,
			fmt.Sprintf("Short code must be %d–%d characters long", MinShortCodeLength, MaxShortCodeLength))
	}
	if !shortCodeCharset.MatchString(code) {
		res.add(FieldShortCode, ErrInvalidFormat, "Short code must contain only letters and numbers")
	}
	if !res.Valid() {
		return res
	}

	if IsReserved(code) {
		res.add(FieldShortCode, ErrReserved, "This short code is reserved")
		return res
	}
	if _, taken := existing[strings.ToLower(code)]; taken {
		res.Errors = append(res.Errors, DuplicateShortCode())
	}

	return res
}

// DuplicateShortCode is the error reported for a code that is already stored.
func DuplicateShortCode() *FieldError {
	return newFieldError(FieldShortCode, ErrDuplicate, "This short code is already taken")
}

// IsReserved reports whether code collides with an application route,
// ignoring case.
func IsReserved(code string) bool {
	_, ok := reservedCodes[strings.ToLower(code)]
	return ok
}

// ReservedCodes returns the lower-cased reserved codes.
func ReservedCodes() []string {
	out := make([]string, 0, len(reservedCodes))
	for code := range reservedCodes {
		out = append(out, code)
	}
	return out
}

// IsShortCode reports whether code satisfies the short code format.
func IsShortCode(code string) bool {
	return ValidateShortCode(code, nil).Valid() && code != ""
}

// ValidateValidityMinutes checks an optional validity window in minutes.
// An empty string is valid and defers to the default.
func ValidateValidityMinutes(raw string) Result {
	var res Result

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return res
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 {
		res.add(FieldValidityMinutes, ErrNotAPositiveInteger, "Validity must be a positive number")
		return res
	}
	if n > MaxValidityMinutes {
		res.add(FieldValidityMinutes, ErrExceedsMaximum,
			fmt.Sprintf("Validity cannot exceed 1 year (%d minutes)", MaxValidityMinutes))
	}

	return res
}

// ParseValidityMinutes resolves an already validated raw value, falling back
// to def when empty.
func ParseValidityMinutes(raw string, def int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotAPositiveInteger, err)
	}
	return n, nil
}

// ValidateRequest runs every field validator for one creation request.
func ValidateRequest(req model.CreationRequest, existing map[string]struct{}) Result {
	var res Result
	res.merge(ValidateURL(req.OriginalURL))
	res.merge(ValidateShortCode(req.CustomShortCode, existing))
	res.merge(ValidateValidityMinutes(req.ValidityMinutesRaw))
	return res
}
