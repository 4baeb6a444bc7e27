package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes the cause chain and details.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var we *WeaveError
	if !stderrors.As(err, &we) {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(we.Message)
	sb.WriteString("\n")

	if we.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(we.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		if we.Cause != nil {
			sb.WriteString(fmt.Sprintf("\nCause: %v\n", we.Cause))
		}
		for k, v := range we.Details {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", we.Code))

	return sb.String()
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var we *WeaveError
	if !stderrors.As(err, &we) {
		we = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", we.Message))

	if we.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("Hint:  %s\n", we.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("Code:  %s", we.Code))
	return sb.String()
}
