package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicy enforces length, character class, and zxcvbn strength
// requirements on new passwords. Contextual inputs (email, username) are
// fed to the strength estimator so passwords derived from them score low.
type PasswordPolicy struct {
	minLength  int
	minClasses int
	minScore   int
}

// NewPasswordPolicy returns the service default password policy.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		minLength:  defaultMinPasswordLength,
		minClasses: defaultMinCharacterClasses,
		minScore:   defaultMinZxcvbnScore,
	}
}

// Validate checks the password against all policy rules and returns the
// first violation.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if len([]rune(password)) < p.minLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		}
	}

	if classes := countCharacterClasses(password); classes < p.minClasses {
		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must contain characters from at least %d classes (upper, lower, digit, symbol)", p.minClasses),
		}
	}

	if result := zxcvbn.PasswordStrength(password, userInputs); result.Score < p.minScore {
		return &PasswordValidationError{
			Code:    "strength",
			Message: "password is too easy to guess",
		}
	}

	return nil
}

func countCharacterClasses(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	count := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			count++
		}
	}
	return count
}
