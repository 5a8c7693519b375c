package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"grimm.is/fwrules/internal/firewall"
)

// RegisterCustomValidators registers the fw_* validation tags.
func RegisterCustomValidators(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"fw_action":    validateAction,
		"fw_direction": validateDirection,
		"fw_protocol":  validateProtocol,
		"fw_promfile":  validatePromFile,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func validateAction(fl validator.FieldLevel) bool {
	_, err := firewall.ParseAction(fl.Field().String())
	return err == nil
}

func validateDirection(fl validator.FieldLevel) bool {
	_, err := firewall.ParseDirection(fl.Field().String())
	return err == nil
}

func validateProtocol(fl validator.FieldLevel) bool {
	_, err := firewall.ParseProtocol(fl.Field().String())
	return err == nil
}

// validatePromFile requires an absolute path ending in .prom, which is what
// the node exporter textfile collector reads.
func validatePromFile(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	return filepath.IsAbs(path) && strings.HasSuffix(path, ".prom")
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRuleNames(); err != nil {
		return err
	}
	return nil
}

// validateRuleNames rejects blank and duplicate rule labels. Declaring a name
// twice would make apply delete the first rule when creating the second.
func (c *Config) validateRuleNames() error {
	seen := make(map[string]int, len(c.Rules))
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rule[%d]: name must not be blank", i)
		}
		if j, dup := seen[r.Name]; dup {
			return fmt.Errorf("rule[%d]: name %q already declared by rule[%d]", i, r.Name, j)
		}
		seen[r.Name] = i
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "fw_action":
		return fmt.Sprintf("%s must be allow or block, got %q", field, e.Value())
	case "fw_direction":
		return fmt.Sprintf("%s must be in or out, got %q", field, e.Value())
	case "fw_protocol":
		return fmt.Sprintf("%s must be a protocol name or a number 0-256, got %q", field, e.Value())
	case "fw_promfile":
		return fmt.Sprintf("%s must be an absolute path ending in .prom", field)
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("%s must be a hostname or IP address", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
