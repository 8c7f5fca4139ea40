package pharmacy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json name so a ValidationError
// carries the same key the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct checks validate tags and converts the first violation
// into a *ValidationError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return &ValidationError{Reason: err.Error()}
}

// ValidateNewPrescription validates a header and its items.
func ValidateNewPrescription(header NewPrescription, items []NewItem) error {
	if err := ValidateStruct(header); err != nil {
		return err
	}
	if len(items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, it := range items {
		it.DrugCode = strings.TrimSpace(it.DrugCode)
		it.DisplayName = strings.TrimSpace(it.DisplayName)
		if err := ValidateStruct(it); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("items[%d].%s", i, ve.Field)
			}
			return err
		}
		if it.UnitPrice.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unit_price", i), Reason: "must not be negative"}
		}
	}
	return nil
}

// ValidateCatalogEntry checks the fields Upsert writes.
func ValidateCatalogEntry(e CatalogEntry) error {
	if strings.TrimSpace(e.Code) == "" {
		return &ValidationError{Field: "code", Reason: "is required"}
	}
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if e.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// RequireIdentity rejects a blank staff identity.
func RequireIdentity(field, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// RequirePositive rejects zero and negative quantities.
func RequirePositive(field string, qty int64) error {
	if qty <= 0 {
		return &ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag()
}
