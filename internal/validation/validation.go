// Package validation runs struct tag validation and classifies failures.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/router-for-me/marketplace-core/internal/apperr"
)

var phonePattern = regexp.MustCompile(`^\+92[0-9]{10}$`)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if errRegister := v.RegisterValidation("pkphone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		}); errRegister != nil {
			panic(fmt.Sprintf("validation: register pkphone: %v", errRegister))
		}
		validate = v
	})
	return validate
}

// ValidPhone reports whether phone is a +92 mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Struct validates s and returns an apperr Validation error listing bad fields.
func Struct(s any) error {
	errValidate := instance().Struct(s)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(errValidate, &fieldErrs) {
		return apperr.Validation(errValidate.Error())
	}
	fields := make(map[string]string, len(fieldErrs))
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = message(fe)
		names = append(names, fe.Field())
	}
	return apperr.ValidationFields("invalid fields: "+strings.Join(names, ", "), fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "pkphone":
		return "must match +92XXXXXXXXXX"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid url"
	default:
		return fmt.Sprintf("failed on %q", fe.Tag())
	}
}
