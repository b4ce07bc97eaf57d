package config

import (
	"fmt"

	"impractical.co/dropper"
)

const (
	msgNotFileDocument        = "[Data] :: Configured entity is not of type 'System.FileDocument'! Widget disabled"
	msgPersistentVerification = "[Verification] :: Verification entity can only be a non-persistable entity"
	msgGlyphMissing           = "[UI] :: %s button style is set to 'Glyphicon', but class is empty. Either set the class or use the built-in icon"
	msgVerificationActions    = "[Verification] :: Only select a microflow OR nanoflow for verification, not both"
)

// Messages returns the fatal validation messages for configuration
// mistakes that leave the widget unusable. checks carries what the domain
// model says about the configured entities.
func Messages(s *Settings, checks Checks) []dropper.ValidationMessage {
	var messages []dropper.ValidationMessage
	add := func(msg string) {
		messages = append(messages, dropper.NewValidationMessage(msg, dropper.SeverityFatal))
	}

	if checks.NotFileDocument {
		add(msgNotFileDocument)
	}
	if checks.PersistentVerification {
		add(msgPersistentVerification)
	}
	for _, button := range []struct {
		name, style, glyph string
	}{
		{"Delete", s.UI.DeleteButtonStyle, s.UI.DeleteButtonGlyph},
		{"Save", s.UI.SaveButtonStyle, s.UI.SaveButtonGlyph},
		{"Error", s.UI.ErrorButtonStyle, s.UI.ErrorButtonGlyph},
	} {
		if button.style == "glyphicon" && button.glyph == "" {
			add(fmt.Sprintf(msgGlyphMissing, button.name))
		}
	}
	if s.Verification.BeforeAcceptMicroflow != "" && s.Verification.BeforeAcceptNanoflow != "" {
		add(msgVerificationActions)
	}
	return messages
}
