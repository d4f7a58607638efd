package validation

import (
	"errors"
	"testing"

	"github.com/router-for-me/marketplace-core/internal/apperr"
)

type sample struct {
	Phone string `json:"phone" validate:"required,pkphone"`
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"gte=0"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Phone: "03001234567", Email: "nope", Age: 1})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := appErr.Fields["phone"]; !ok {
		t.Fatalf("expected phone field error, got %v", appErr.Fields)
	}
	if _, ok := appErr.Fields["email"]; !ok {
		t.Fatalf("expected email field error, got %v", appErr.Fields)
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := Struct(sample{Phone: "+923001234567", Email: "a@b.pk"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ValidPhone("+923001234567") || ValidPhone("+92300123456") {
		t.Fatalf("unexpected phone check result")
	}
}
