package smsverify

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleValidator checks a field value against a rule definition.
type RuleValidator interface {
	Validate(field, value, rule string) error
}

// MobileRuleValidator understands rule definitions made of "|" separated tokens:
//
//	required       the value may not be blank
//	mobile         the value is a valid mobile number for one of Countries
//	regex:<expr>   the value matches expr (expr may not contain "|")
type MobileRuleValidator struct {
	Countries []string
}

func (v MobileRuleValidator) Validate(field, value, rule string) error {
	for _, token := range strings.Split(rule, "|") {
		token = strings.TrimSpace(token)
		name, arg, _ := strings.Cut(token, ":")
		switch name {
		case "":
		case "required":
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%w: %v is required", ErrInvalidMobile, field)
			}
		case "mobile":
			if !isMobile(value, v.Countries) {
				return fmt.Errorf("%w: %v is not a valid mobile number", ErrInvalidMobile, value)
			}
		case "regex":
			re, err := regexp.Compile(arg)
			if err != nil {
				return fmt.Errorf("rule %q: %w", rule, err)
			}
			if !re.MatchString(value) {
				return fmt.Errorf("%w: %v does not match %v", ErrInvalidMobile, value, arg)
			}
		default:
			return fmt.Errorf("rule %q: unsupported token %q", rule, token)
		}
	}
	return nil
}

func isMobile(n string, countries []string) bool {
	if len(countries) != 0 {
		return NormalizeMobile(n, countries) != ""
	}
	// Without countries the best we can do is an E.164 length check
	digits := numbersOnly(n)
	return len(digits) >= 7 && len(digits) <= 15
}
