package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/formsheet/server/internal/formula"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// FieldError is one problem with a submitted configuration or payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// ValidateStruct runs the validate tags of s and reports failures by JSON field path.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	result := &ValidationError{}
	for _, fe := range verrs {
		result.add(fieldPath(fe.Namespace()), "%s", tagMessage(fe))
	}
	return result
}

// AsValidationError unwraps err into a *ValidationError when it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func fieldPath(namespace string) string {
	// drop the root type name: formPayload.fields[0].name -> fields[0].name
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "alpha":
		return "must contain letters only"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

var knownFieldTypes = map[FieldType]bool{
	FieldTypeText: true, FieldTypeTextarea: true, FieldTypeNumber: true, FieldTypeEmail: true,
	FieldTypeDate: true, FieldTypeDateTime: true, FieldTypeDropdown: true, FieldTypeCheckbox: true,
	FieldTypeQRScan: true, FieldTypeGeolocation: true, FieldTypeDynamic: true, FieldTypeFormula: true,
	FieldTypeLabel: true,
}

// ValidateFormFields enforces the per-type rules of a field list. sources is the lookup
// allow-list that dropdown catalogs and dynamic fields may bind to.
func ValidateFormFields(fields []FieldDefinition, sources []LookupSource) error {
	result := &ValidationError{}

	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		names[strings.ToLower(f.Name)] = true
	}
	registry := make(map[string]*LookupSource, len(sources))
	for i := range sources {
		registry[sources[i].Table] = &sources[i]
	}

	seenNames := map[string]bool{}
	seenIDs := map[string]bool{}
	seenColumns := map[string]string{}

	for i, f := range fields {
		path := fmt.Sprintf("fields[%d]", i)

		if err := ValidateStruct(f); err != nil {
			if verr, ok := AsValidationError(err); ok {
				for _, fe := range verr.Errors {
					result.add(path+"."+fe.Field, "%s", fe.Message)
				}
			}
			continue
		}

		if !knownFieldTypes[f.Type] {
			result.add(path+".type", "unknown field type %q", f.Type)
			continue
		}

		key := strings.ToLower(f.Name)
		if seenNames[key] {
			result.add(path+".name", "duplicate field name %q", f.Name)
		}
		seenNames[key] = true
		if seenIDs[f.ID] {
			result.add(path+".id", "duplicate field id %q", f.ID)
		}
		seenIDs[f.ID] = true

		if f.SheetColumn != "" {
			column := strings.ToUpper(f.SheetColumn)
			if other, taken := seenColumns[column]; taken {
				result.add(path+".sheetColumn", "column %s is already used by %q", column, other)
			}
			seenColumns[column] = f.Name
		}

		switch f.Type {
		case FieldTypeDropdown:
			if len(f.Options) == 0 && f.DataSource == nil {
				result.add(path+".options", "dropdown needs options or a data source")
			}
			if ds := f.DataSource; ds != nil {
				source, ok := registry[ds.Table]
				switch {
				case !ok:
					result.add(path+".dataSource.table", "table %q is not an allowed lookup source", ds.Table)
				case !source.HasColumn(ds.LabelColumn) || !source.HasColumn(ds.ValueColumn):
					result.add(path+".dataSource", "columns must be allowed columns of %q", ds.Table)
				}
			}

		case FieldTypeNumber:
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				result.add(path+".min", "min must not exceed max")
			}

		case FieldTypeFormula:
			if strings.TrimSpace(f.Formula) == "" {
				result.add(path+".formula", "is required")
				break
			}
			expr, err := formula.Parse(f.Formula)
			if err != nil {
				result.add(path+".formula", "%s", err.Error())
				break
			}
			for _, ref := range expr.References() {
				if !names[strings.ToLower(ref)] || strings.EqualFold(ref, f.Name) {
					result.add(path+".formula", "references unknown field %q", ref)
				}
			}

		case FieldTypeDynamic:
			lookup := f.Lookup
			if lookup == nil {
				result.add(path+".lookup", "is required")
				break
			}
			source, ok := registry[lookup.Table]
			if !ok {
				result.add(path+".lookup.table", "table %q is not an allowed lookup source", lookup.Table)
				break
			}
			if !source.HasColumn(lookup.SearchColumn) {
				result.add(path+".lookup.searchColumn", "column %q is not allowed", lookup.SearchColumn)
			}
			if !source.HasColumn(lookup.ResultColumn) {
				result.add(path+".lookup.resultColumn", "column %q is not allowed", lookup.ResultColumn)
			}
			if lookup.SourceField != "" && !names[strings.ToLower(lookup.SourceField)] {
				result.add(path+".lookup.sourceField", "references unknown field %q", lookup.SourceField)
			}
			for j, lf := range lookup.Formulas {
				fpath := fmt.Sprintf("%s.lookup.formulas[%d]", path, j)
				if !names[strings.ToLower(lf.Target)] {
					result.add(fpath+".target", "references unknown field %q", lf.Target)
				}
				expr, err := formula.Parse(lf.Expression)
				if err != nil {
					result.add(fpath+".expression", "%s", err.Error())
					continue
				}
				for _, ref := range expr.References() {
					if !source.HasColumn(ref) {
						result.add(fpath+".expression", "column %q is not allowed", ref)
					}
				}
			}
		}
	}

	return result.orNil()
}

// ValidateReportTemplate checks parameters and sections. Tables and charts must be able to
// resolve a tab, either their own or the template's.
func ValidateReportTemplate(t *ReportTemplate) error {
	result := &ValidationError{}

	if strings.TrimSpace(t.Name) == "" {
		result.add("name", "is required")
	}

	seenParams := map[string]bool{}
	for i, p := range t.Parameters {
		path := fmt.Sprintf("parameters[%d]", i)
		if err := ValidateStruct(p); err != nil {
			if verr, ok := AsValidationError(err); ok {
				for _, fe := range verr.Errors {
					result.add(path+"."+fe.Field, "%s", fe.Message)
				}
			}
			continue
		}
		if seenParams[p.Name] {
			result.add(path+".name", "duplicate parameter name %q", p.Name)
		}
		seenParams[p.Name] = true
	}

	seenSections := map[string]bool{}
	for i, s := range t.Sections {
		path := fmt.Sprintf("sections[%d]", i)
		if err := ValidateStruct(s); err != nil {
			if verr, ok := AsValidationError(err); ok {
				for _, fe := range verr.Errors {
					result.add(path+"."+fe.Field, "%s", fe.Message)
				}
			}
			continue
		}
		if seenSections[s.ID] {
			result.add(path+".id", "duplicate section id %q", s.ID)
		}
		seenSections[s.ID] = true

		if s.Type == SectionTypeText {
			continue
		}
		if strings.TrimSpace(s.SheetName) == "" && strings.TrimSpace(t.SheetName) == "" {
			result.add(path+".sheetName", "a table or chart needs a sheet, on the section or the template")
		}
		if s.Type == SectionTypeChart {
			if s.ChartType == "" {
				result.add(path+".chartType", "is required")
			}
			if s.LabelColumn == "" {
				result.add(path+".labelColumn", "is required")
			}
		}
	}

	return result.orNil()
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
