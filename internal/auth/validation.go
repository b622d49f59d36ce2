package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

	commonPasswords = map[string]struct{}{
		"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
		"1234567890": {}, "qwerty123": {}, "qwertyuiop": {}, "iloveyou": {}, "letmein1": {},
		"abc12345": {}, "welcome1": {}, "admin123": {}, "passw0rd": {}, "collabhub": {},
	}
)

// ValidatePassword checks password against the account password policy:
// minimum length, at most 128 characters, not a common password, not purely
// numeric and containing at least one letter and one digit.
func ValidatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}

	if len([]rune(password)) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}
	if len(password) > 128 {
		return errors.New("password must be at most 128 characters long")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return errors.New("password is too common")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return errors.New("password cannot be entirely numeric")
	}
	if !hasDigit {
		return errors.New("password must contain at least one digit")
	}
	return nil
}

// ValidateUsername checks length and the allowed character set
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return errors.New("username is required")
	case len(username) < 3:
		return errors.New("username must be at least 3 characters")
	case len(username) > 30:
		return errors.New("username cannot exceed 30 characters")
	case !usernamePattern.MatchString(username):
		return errors.New("username must start with a letter and contain only letters, numbers, underscores, and hyphens")
	}
	return nil
}

// NormalizeEmail trims and lowercases an address and checks its syntax
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", errors.New("invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", errors.New("invalid email address")
	}
	return email, nil
}
