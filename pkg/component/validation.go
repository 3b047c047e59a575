package component

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ValidationResult is the outcome of checking one property value.
type ValidationResult struct {
	Subject     string
	Input       string
	Valid       bool
	Explanation string
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("'%s' validated against '%s' is valid", r.Subject, r.Input)
	}
	return fmt.Sprintf("'%s' validated against '%s' is invalid because %s", r.Subject, r.Input, r.Explanation)
}

// Validator checks a raw property value.
type Validator interface {
	Validate(subject, input string) ValidationResult
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(subject, input string) ValidationResult

// Validate calls f.
func (f ValidatorFunc) Validate(subject, input string) ValidationResult {
	return f(subject, input)
}

func valid(subject, input string) ValidationResult {
	return ValidationResult{Subject: subject, Input: input, Valid: true}
}

func invalid(subject, input, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Subject: subject, Input: input, Explanation: fmt.Sprintf(format, args...)}
}

// Standard validators.
var (
	AlwaysValid Validator = ValidatorFunc(valid)

	NonEmpty Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if strings.TrimSpace(input) == "" {
			return invalid(subject, input, "%s cannot be empty", subject)
		}
		return valid(subject, input)
	})

	Integer Validator = integerIn("an integer", -1<<31, 1<<31-1)

	Long Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if _, err := parseInteger(input); err != nil {
			return invalid(subject, input, "not a valid long")
		}
		return valid(subject, input)
	})

	PositiveInteger Validator = integerIn("a positive integer", 1, 1<<31-1)

	NonNegativeInteger Validator = integerIn("a non-negative integer", 0, 1<<31-1)

	Port Validator = integerIn("a valid port number", 1, 65535)

	Boolean Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if _, err := cast.ToBoolE(strings.TrimSpace(input)); err != nil {
			return invalid(subject, input, "must be true or false")
		}
		return valid(subject, input)
	})

	Double Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if _, err := cast.ToFloat64E(strings.TrimSpace(input)); err != nil {
			return invalid(subject, input, "not a valid double")
		}
		return valid(subject, input)
	})

	TimePeriod Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if _, err := time.ParseDuration(strings.TrimSpace(input)); err != nil {
			return invalid(subject, input, "must be a duration such as 30s or 5m")
		}
		return valid(subject, input)
	})

	CommaSeparatedList Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		for _, item := range strings.Split(input, ",") {
			if strings.TrimSpace(item) == "" {
				return invalid(subject, input, "list contains an empty element")
			}
		}
		return valid(subject, input)
	})

	Regex Validator = ValidatorFunc(func(subject, input string) ValidationResult {
		if _, err := regexp.Compile(input); err != nil {
			return invalid(subject, input, "not a valid regular expression: %v", err)
		}
		return valid(subject, input)
	})
)

func integerIn(what string, min, max int64) Validator {
	return ValidatorFunc(func(subject, input string) ValidationResult {
		v, err := parseInteger(input)
		if err != nil || v < min || v > max {
			return invalid(subject, input, "not %s", what)
		}
		return valid(subject, input)
	})
}

// MatchesRegex accepts values that match pattern. It panics if pattern
// does not compile.
func MatchesRegex(pattern string) Validator {
	re := regexp.MustCompile(pattern)
	return ValidatorFunc(func(subject, input string) ValidationResult {
		if !re.MatchString(input) {
			return invalid(subject, input, "does not match %s", pattern)
		}
		return valid(subject, input)
	})
}
