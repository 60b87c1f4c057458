package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/formsheet/server/internal/formula"
	"github.com/formsheet/server/internal/models"
)

var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// InitialValues returns the value each input starts with: its default, the current time for
// datetime fields, false for checkboxes and "" otherwise. Formula fields are computed from the
// other initial values.
func InitialValues(fields []models.FieldDefinition, now time.Time) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if field.Type == models.FieldTypeLabel || field.Type == models.FieldTypeFormula {
			continue
		}
		switch {
		case field.DefaultValue != nil && field.DefaultValue != "":
			values[field.Name] = field.DefaultValue
		case field.Type == models.FieldTypeDateTime:
			values[field.Name] = now.UTC().Format(time.RFC3339)
		case field.Type == models.FieldTypeCheckbox:
			values[field.Name] = false
		default:
			values[field.Name] = ""
		}
	}

	for _, field := range fields {
		if field.Type != models.FieldTypeFormula {
			continue
		}
		result, err := formula.Evaluate(field.Formula, values)
		if err != nil {
			values[field.Name] = ""
			continue
		}
		values[field.Name] = result
	}
	return values
}

// PrepareValues checks submitted values against the field list and returns the normalized
// values to store and export: numbers become float64, checkboxes bool, and formula fields are
// recomputed server-side. Keys that are not fields of the form are dropped.
func PrepareValues(fields []models.FieldDefinition, submitted map[string]interface{}) (map[string]interface{}, error) {
	result := &models.ValidationError{}
	fail := func(field, format string, args ...interface{}) {
		result.Errors = append(result.Errors, models.FieldError{
			Field:   "values." + field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if field.Type == models.FieldTypeLabel || field.Type == models.FieldTypeFormula {
			continue
		}

		raw := submitted[field.Name]
		if isEmptyValue(raw) {
			if field.Required && !field.Hidden {
				fail(field.Name, "is required")
			}
			if field.Type == models.FieldTypeCheckbox {
				values[field.Name] = false
			} else {
				values[field.Name] = ""
			}
			continue
		}

		switch field.Type {
		case models.FieldTypeNumber:
			n, ok := numberValue(raw)
			if !ok {
				fail(field.Name, "must be a number")
				continue
			}
			if field.Min != nil && n < *field.Min {
				fail(field.Name, "must be at least %s", formula.ToString(*field.Min))
			}
			if field.Max != nil && n > *field.Max {
				fail(field.Name, "must be at most %s", formula.ToString(*field.Max))
			}
			values[field.Name] = n

		case models.FieldTypeEmail:
			s := strings.TrimSpace(formula.ToString(raw))
			if !models.IsEmail(s) {
				fail(field.Name, "must be a valid email address")
				continue
			}
			values[field.Name] = s

		case models.FieldTypeDate:
			s := strings.TrimSpace(formula.ToString(raw))
			if _, err := time.Parse("2006-01-02", s); err != nil {
				fail(field.Name, "must be a date (YYYY-MM-DD)")
				continue
			}
			values[field.Name] = s

		case models.FieldTypeDateTime:
			s := strings.TrimSpace(formula.ToString(raw))
			if !parsesAsDateTime(s) {
				fail(field.Name, "must be a date and time")
				continue
			}
			values[field.Name] = s

		case models.FieldTypeCheckbox:
			checked := formula.ToBool(raw)
			if field.Required && !checked {
				fail(field.Name, "must be checked")
			}
			values[field.Name] = checked

		case models.FieldTypeDropdown:
			s := formula.ToString(raw)
			if len(field.Options) > 0 && !optionAllowed(field.Options, s) {
				fail(field.Name, "is not one of the available options")
				continue
			}
			values[field.Name] = s

		default:
			values[field.Name] = raw
		}
	}

	// formulas only run over inputs that passed validation
	if len(result.Errors) > 0 {
		return nil, result
	}
	for _, field := range fields {
		if field.Type != models.FieldTypeFormula {
			continue
		}
		computed, err := formula.Evaluate(field.Formula, values)
		if err != nil {
			fail(field.Name, "could not be computed: %v", err)
			continue
		}
		values[field.Name] = computed
	}

	if len(result.Errors) > 0 {
		return nil, result
	}
	return values, nil
}

func isEmptyValue(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(value) == ""
	case []interface{}:
		return len(value) == 0
	case map[string]interface{}:
		return len(value) == 0
	}
	return false
}

func numberValue(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		return formula.ParseNumber(value)
	}
	return 0, false
}

func parsesAsDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func optionAllowed(options []models.FieldOption, value string) bool {
	for _, option := range options {
		if option.Value == value || (option.Value == "" && option.Label == value) {
			return true
		}
	}
	return false
}
