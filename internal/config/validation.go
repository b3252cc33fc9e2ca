package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// LogValidationErrors logs each failing field of a validator.ValidationErrors
// (or a *multierror.Error of *allocatorerrors.ConfigError) at error level,
// the way internal/common/config.LogValidationErrors does in the teacher
// codebase.
func LogValidationErrors(err error) {
	if err == nil {
		return
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			fieldName := stripPrefix(verr.Namespace())
			tag := verr.Tag()
			switch tag {
			case "required":
				log.Errorf("ConfigError: field %s is required but was not found", fieldName)
			default:
				log.Errorf("ConfigError: field %s has invalid value %v: %s", fieldName, verr.Value(), tag)
			}
		}
		return
	}
	log.Errorf("ConfigError: %s", err)
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
