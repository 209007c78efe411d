package room

import (
	"regexp"
	"strings"

	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidateID checks a user-supplied room id before it is sent anywhere.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &httperrors.ValidationError{Field: "room_id", Message: "room id is required"}
	}
	if !roomIDPattern.MatchString(id) {
		return &httperrors.ValidationError{Field: "room_id", Message: "room id may only contain letters and digits"}
	}
	return nil
}
