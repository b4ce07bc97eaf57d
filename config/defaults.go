package config

import (
	"strings"

	"impractical.co/dropper"
)

// ApplyDefaults fills in every setting left at its zero value. Explicit
// values are kept.
func ApplyDefaults(cfg *Settings) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if cfg.Data.SaveMethod == "" {
		cfg.Data.SaveMethod = "saveDocument"
	}

	applyButtonDefault(&cfg.UI.DeleteButtonStyle)
	applyButtonDefault(&cfg.UI.SaveButtonStyle)
	applyButtonDefault(&cfg.UI.ErrorButtonStyle)

	cfg.Texts = dropper.DefaultTexts().Merge(cfg.Texts)

	if cfg.Host.Storage == "" {
		cfg.Host.Storage = "memory"
	}
	cfg.Host.BaseURL = strings.TrimRight(cfg.Host.BaseURL, "/")
}

func applyButtonDefault(style *string) {
	if *style == "" {
		*style = "builtin"
	}
	*style = strings.ToLower(*style)
}
