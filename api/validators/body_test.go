package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

type quantityBody struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p-1","quantity":2}`))
	var body quantityBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProductID != "p-1" || body.Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p-1","price":1}`))
	var body quantityBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRunsValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":-1}`))
	var body quantityBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if _, ok := details["product_id"]; !ok {
		t.Fatalf("expected product_id detail, got %v", details)
	}
	if _, ok := details["quantity"]; !ok {
		t.Fatalf("expected quantity detail, got %v", details)
	}
}

func TestRawJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(""))
	raw, err := RawJSONBody(req)
	if err != nil || string(raw) != "{}" {
		t.Fatalf("expected empty object, got %s (%v)", raw, err)
	}

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{not json"))
	if _, err := RawJSONBody(req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  abcdef ", 3); got != "abc" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
}
