package accounts

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// MsgWeakPassword explains every strength requirement at once so the user
// can fix their password in a single attempt.
const MsgWeakPassword = "password must be at least 8 characters and include an uppercase letter, a lowercase letter, a number, and a special character"

// MsgEmptyName rejects blank or whitespace-only display names.
const MsgEmptyName = "name cannot be empty"

// MinPasswordLength is the strength floor for new passwords.
const MinPasswordLength = 8

const defaultPhoneRegion = "CO"

// ValidatePasswordStrength checks the composition rules for a new password.
// Existing passwords are never re-checked; the rules apply at set time only.
func ValidatePasswordStrength(password string) error {
	// characters, not bytes; multibyte runes count once
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errors.New(MsgWeakPassword)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return errors.New(MsgWeakPassword)
	}

	return nil
}

// PasswordStrengthRule adapts ValidatePasswordStrength for ozzo payloads.
func PasswordStrengthRule() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		return ValidatePasswordStrength(s)
	})
}

// ValidateName rejects names that are empty once trimmed.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(MsgEmptyName)
	}
	return nil
}

// NameRule adapts ValidateName for ozzo payloads.
func NameRule() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		return ValidateName(s)
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhone parses an optional phone number against the default region.
// Empty values pass: phone is not a required profile field.
func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}

	num, err := phonenumbers.Parse(phone, defaultPhoneRegion)
	if err != nil {
		return errors.New("invalid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return errors.New("invalid phone number")
	}

	return nil
}

// PhoneRule adapts ValidatePhone for ozzo payloads.
func PhoneRule() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		return ValidatePhone(s)
	})
}
