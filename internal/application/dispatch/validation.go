package dispatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if f, ok := field.Interface().(transaction.FlexString); ok {
			return f.Value()
		}
		return nil
	}, transaction.FlexString{})

	// flexnum: any string, or a positive number.
	v.RegisterValidation("flexnum", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.String:
			return true
		case reflect.Float64:
			return fl.Field().Float() > 0
		default:
			return false
		}
	})

	// fourpart: four groups separated by spaces.
	v.RegisterValidation("fourpart", func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) == 4
	})

	return v
}

func validationError(err error) error {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return domainErrors.NewValidationError("body", "invalid", err.Error())
	}
	fields := make([]domainErrors.FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, domainErrors.FieldError{
			Path:    fe.Field(),
			Code:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return &domainErrors.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "url":
		return "must be a valid url"
	case "flexnum":
		return "must be a string or a positive number"
	case "fourpart":
		return "must have four space separated parts"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
