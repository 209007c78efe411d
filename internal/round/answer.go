package round

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

var answerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)

// ParseAnswer validates a candidate answer against modulus p and returns its
// canonical decimal form.
func ParseAnswer(raw string, p int64) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &httperrors.ValidationError{Field: "answer", Message: "please enter an answer"}
	}
	if !answerPattern.MatchString(s) {
		return "", &httperrors.ValidationError{Field: "answer", Message: "answer must be an integer"}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", &httperrors.ValidationError{Field: "answer", Message: "answer is out of range"}
	}
	if v < 0 || v >= p {
		return "", &httperrors.ValidationError{
			Field:   "answer",
			Message: fmt.Sprintf("answer must be between 0 and %d", p-1),
		}
	}
	return strconv.FormatInt(v, 10), nil
}
