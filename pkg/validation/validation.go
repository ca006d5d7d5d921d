package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// UsernameRegex validates username format
	UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateUsername validates username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateMessageContent checks chat message text as it will be stored, with
// surrounding whitespace removed. maxLength <= 0 disables the length check.
func ValidateMessageContent(content string, maxLength int) error {
	content = strings.TrimSpace(content)
	if err := ValidateNonEmptyString(content, "content"); err != nil {
		return err
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid characters")
	}
	if maxLength > 0 {
		return ValidateStringLength(content, 1, maxLength, "content")
	}
	return nil
}

// ValidateID validates a numeric entity ID
func ValidateID(id int64, fieldName string) error {
	if id <= 0 {
		return fmt.Errorf("%s must be a positive integer", fieldName)
	}
	return nil
}

// ValidateHandle validates a connection handle
func ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	if _, err := uuid.Parse(handle); err != nil {
		return fmt.Errorf("invalid handle format")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
