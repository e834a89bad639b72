package validation

import (
	"errors"
	"testing"

	"autoconnect/internal/apperr"
)

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Passw0rd":     true,
		"abcDEF123":    true,
		"short1A":      false,
		"alllower123":  false,
		"ALLUPPER123":  false,
		"NoDigitsHere": false,
		"Has space1A":  false,
		"Symb0l!Abc":   false,
	}
	for in, want := range cases {
		if got := StrongPassword(in); got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Date  string `json:"pickupDate" validate:"required,datetime=2006-01-02"`
	Kind  string `json:"rentalType" validate:"omitempty,oneof=personal company"`
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Struct(sample{Email: "nope", Date: "10/03/2024", Kind: "fleet"})

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"email", "pickupDate", "rentalType"} {
		if ae.Fields[f] == "" {
			t.Fatalf("missing field %q in %v", f, ae.Fields)
		}
	}

	if err := v.Struct(sample{Email: "a@b.ph", Date: "2024-03-10"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}
