package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

var validate = newValidator()

// ValidationError lists every invalid field by its YAML name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type configValidator struct {
	v *validator.Validate
}

func newValidator() *configValidator {
	v := validator.New()

	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	must(v.RegisterValidation("locale", func(fl validator.FieldLevel) bool {
		_, err := seller.ParseLocale(fl.Field().String())
		return err == nil
	}))
	must(v.RegisterValidation("seller", func(fl validator.FieldLevel) bool {
		_, err := seller.Parse(fl.Field().String())
		return err == nil
	}))

	return &configValidator{v: v}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s and converts failures into a *ValidationError.
func (cv *configValidator) Struct(s any) error {
	err := cv.v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fields[e.Field()] = friendlyMessage(e)
	}
	return &ValidationError{Fields: fields}
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "locale":
		locales := make([]string, 0, len(seller.Locales()))
		for _, l := range seller.Locales() {
			locales = append(locales, string(l))
		}
		return "must be one of: " + strings.Join(locales, " ")
	case "seller":
		sellers := make([]string, 0, len(seller.All()))
		for _, s := range seller.All() {
			sellers = append(sellers, string(s))
		}
		return "must be one of: " + strings.Join(sellers, " ")
	default:
		return "is invalid"
	}
}
