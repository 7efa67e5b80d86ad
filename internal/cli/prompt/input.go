package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted (Ctrl+C).
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Token prompts for a bearer token without echoing it.
func Token(label string) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Mask:     '*',
		Validate: ValidateToken,
	}

	result, err := p.Run()
	return strings.TrimSpace(result), wrapError(err)
}

// ValidateToken rejects input that cannot be a compact JWT.
func ValidateToken(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("token is required")
	}
	if strings.Count(input, ".") != 2 || strings.ContainsAny(input, " \t") {
		return errors.New("token must be a JWT (header.payload.signature)")
	}
	return nil
}
