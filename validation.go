package dropper

import "github.com/google/uuid"

// Severity classifies a ValidationMessage.
type Severity string

const (
	// SeverityFatal messages disable the Store and can't be dismissed.
	SeverityFatal Severity = "fatal"
	// SeverityWarning messages are informational and dismissable.
	SeverityWarning Severity = "warning"
)

// ValidationMessage is a user-facing message about the Store as a whole,
// as opposed to an error on a single File.
type ValidationMessage struct {
	ID          string
	Message     string
	Dismissable bool
	Fatal       bool
}

// NewValidationMessage returns a ValidationMessage with a fresh ID.
func NewValidationMessage(message string, severity Severity) ValidationMessage {
	return ValidationMessage{
		ID:          uuid.NewString(),
		Message:     message,
		Dismissable: severity != SeverityFatal,
		Fatal:       severity == SeverityFatal,
	}
}
