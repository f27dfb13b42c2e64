package event

import (
	"regexp"
	"strings"
)

// MaxNameLength is the longest accepted event name, in bytes.
const MaxNameLength = 50

// namePattern: a word character followed by 1-56 word characters, dashes or
// dots. Combined with MaxNameLength this admits names of 2 to 50 bytes.
var namePattern = regexp.MustCompile(`(?i)^\w[\w\-.]{1,56}$`)

// nameCutset is the set of characters trimmed from both ends of a name.
const nameCutset = " \t\n\r\x00\x0B"

// CheckName trims name and returns it if it is a valid event name.
//
// It fails with a *NameError (matching ErrInvalidName) when the trimmed name
// is empty, longer than MaxNameLength, or does not match the name pattern.
// Every path that stores a name on an Event goes through CheckName.
func CheckName(name string) (string, error) {
	name = strings.Trim(name, nameCutset)

	if name == "" {
		return "", &NameError{Name: name, Reason: "must not be empty"}
	}
	if len(name) > MaxNameLength {
		return "", &NameError{Name: name, Reason: "must not be longer than 50 characters"}
	}
	if !namePattern.MatchString(name) {
		return "", &NameError{Name: name, Reason: "must start with a word character followed by word characters, '-' or '.'"}
	}
	return name, nil
}

// ValidName reports whether CheckName would accept name.
func ValidName(name string) bool {
	_, err := CheckName(name)
	return err == nil
}
