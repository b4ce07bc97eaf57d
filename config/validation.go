package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"impractical.co/dropper/host"
)

var validate = validator.New()

// Validate checks cfg against its struct tags and the rules tags can't
// express.
func Validate(cfg *Settings) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Settings) error {
	if cfg.Host.Storage == "s3" && cfg.Host.S3.Bucket == "" {
		return fmt.Errorf("host.s3.bucket: required when host.storage is s3")
	}
	if cfg.Data.SaveMethod == "postRequest" && cfg.Host.BaseURL == "" {
		return fmt.Errorf("host.base_url: required when data.save_method is postRequest")
	}

	names := make(map[string]bool, len(cfg.Host.Entities))
	for i, e := range cfg.Host.Entities {
		if names[e.Name] {
			return fmt.Errorf("host.entities[%d]: duplicate entity name %q", i, e.Name)
		}
		names[e.Name] = true
	}
	return nil
}

// formatValidationError reports the first failed struct tag.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func isUnknownEntity(err error) bool {
	return errors.Is(err, host.ErrUnknownEntity)
}
