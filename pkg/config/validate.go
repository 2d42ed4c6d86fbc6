package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	dbNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		return dbNamePattern.MatchString(fl.Field().String())
	})
}

// Validate checks struct constraints and the cross-field rules on the
// default database
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("MetricsAddr: %w", err)
		}
	}

	if c.DefaultDatabase != "" {
		if _, ok := c.Databases[c.DefaultDatabase]; !ok {
			return fmt.Errorf("DefaultDatabase: %q is not a configured database", c.DefaultDatabase)
		}
	}

	var flagged []string
	for _, name := range c.Names() {
		if c.Databases[name].Default {
			flagged = append(flagged, name)
		}
	}
	if len(flagged) > 1 {
		return fmt.Errorf("Databases: only one database may be flagged default, got %v", flagged)
	}
	if len(flagged) == 1 && c.DefaultDatabase != "" && flagged[0] != c.DefaultDatabase {
		return fmt.Errorf("Databases: default_database %q conflicts with %q flagged default", c.DefaultDatabase, flagged[0])
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Report the first failure in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "dbname":
			return fmt.Errorf("%s: invalid database name %q", field, e.Value())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
