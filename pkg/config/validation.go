package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that cannot
// be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// At least one adapter must be enabled
	if !cfg.Adapters.SFTP.Enabled && !cfg.Adapters.FTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// Enabled adapters must not share a port
	if cfg.Adapters.SFTP.Enabled && cfg.Adapters.FTP.Enabled &&
		cfg.Adapters.SFTP.Port == cfg.Adapters.FTP.Port {
		return fmt.Errorf("adapters: SFTP and FTP cannot share port %d", cfg.Adapters.SFTP.Port)
	}

	// SFTP needs some way to authenticate clients
	if cfg.Adapters.SFTP.Enabled {
		s := cfg.Adapters.SFTP
		if s.Username == "" && s.AuthorizedKeysFile == "" {
			return fmt.Errorf("adapters.sftp: username/password or authorized_keys_file is required")
		}
		if s.Username != "" && s.Password == "" {
			return fmt.Errorf("adapters.sftp: password is required when username is set")
		}
	}

	// FTP requires credentials; anonymous access is not offered
	if cfg.Adapters.FTP.Enabled {
		f := cfg.Adapters.FTP
		if f.Username == "" || f.Password == "" {
			return fmt.Errorf("adapters.ftp: username and password are required")
		}
		if f.PassivePortEnd < f.PassivePortStart {
			return fmt.Errorf("adapters.ftp: passive port range %d-%d is inverted",
				f.PassivePortStart, f.PassivePortEnd)
		}
	}

	// The drive store needs a credential source
	if cfg.Store.Type == "drive" {
		hasToken := cfg.Store.Drive["access_token"] != nil && cfg.Store.Drive["access_token"] != ""
		hasOAuth := cfg.Store.Drive["credentials_file"] != nil && cfg.Store.Drive["credentials_file"] != ""
		if !hasToken && !hasOAuth {
			return fmt.Errorf("store.drive: access_token or credentials_file is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
