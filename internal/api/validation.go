package api

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var registerValidatorsOnce sync.Once

// RegisterValidators adds the custom binding tags used by request DTOs to
// gin's validator and reports field names by their json tag.
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := v.RegisterValidation("objectid", validateObjectID); err != nil {
			panic(fmt.Sprintf("register objectid validator: %v", err))
		}
	})
}

// validateObjectID accepts a 24 character hex ObjectID string.
func validateObjectID(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return primitive.IsValidObjectID(fl.Field().String())
}

// validationMessage flattens binding errors to "field: rule" pairs.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Validation error: " + err.Error()
	}
	parts := make([]string, len(errs))
	for i, fe := range errs {
		parts[i] = fe.Field() + ": " + fe.Tag()
	}
	return "Validation error: " + strings.Join(parts, ", ")
}
