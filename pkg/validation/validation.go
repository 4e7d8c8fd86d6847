// Package validation holds the shared struct validator and its custom rules.
package validation

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/go-playground/validator/v10"
)

var (
	holderNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} '.-]*$`)
	mobilePattern     = regexp.MustCompile(`^3[0-9]{9}$`)
	digitsPattern     = regexp.MustCompile(`^[0-9]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "holder_name", func(fl validator.FieldLevel) bool {
		return holderNamePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	mustRegister(v, "co_mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "digits", func(fl validator.FieldLevel) bool {
		return digitsPattern.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates v and returns a VALIDATION_ERROR with per-field details.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return FormatErrors(err)
	}
	return nil
}

// FormatErrors maps validator output onto the API error envelope.
func FormatErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if stdErrors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldPath(fieldErr)] = Message(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

// Field returns a single-field validation error.
func Field(field, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: message})
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Message renders a short human message for one failed rule.
func Message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "digits", "numeric":
		return "must contain only digits"
	case "holder_name":
		return "must contain only letters"
	case "co_mobile":
		return "must be a 10-digit mobile number starting with 3"
	}
	return "is invalid"
}
