// Package validate runs go-playground/validator over input structs and turns
// failures into per-field apperr validation errors keyed by JSON name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return val
}

// Struct validates s. It returns nil or an *apperr.Error of kind validation.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("Validation failed", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe)
		if _, seen := fields[name]; !seen {
			fields[name] = message(fe)
		}
	}
	return apperr.Validation("Validation error", fields)
}

// fieldPath drops the top-level struct name from the namespace, so nested
// fields read "owner.email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "email":
		return "Please provide a valid email"
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", f, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", f)
	}
	return fmt.Sprintf("%s is invalid", f)
}
