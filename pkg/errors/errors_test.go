package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeForbidden, http.StatusForbidden, false},
		{CodeInvalidTransition, http.StatusBadRequest, false},
		{CodeOutOfStock, http.StatusBadRequest, false},
		{CodeNegativeStock, http.StatusBadRequest, false},
		{CodeInvalidSignature, http.StatusBadRequest, false},
		{CodeAlreadyPaid, http.StatusBadRequest, false},
		{CodeAlreadyRefunded, http.StatusBadRequest, false},
		{CodeGateway, http.StatusBadGateway, true},
		{CodeInternal, http.StatusInternalServerError, true},
		{CodeDependency, http.StatusServiceUnavailable, true},
	}

	for _, tc := range tests {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.code, tc.status, meta.HTTPStatus)
		}
		if meta.Retryable != tc.retryable {
			t.Errorf("%s: expected retryable %v", tc.code, tc.retryable)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("disk on fire")
	err := Wrap(CodeDependency, cause, "saving order")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be discoverable via errors.Is")
	}
	if typed := As(err); typed == nil || typed.Code() != CodeDependency {
		t.Fatalf("unexpected typed error: %v", typed)
	}
}

func TestAsReturnsNilForForeignErrors(t *testing.T) {
	if typed := As(stdErrors.New("plain")); typed != nil {
		t.Fatalf("expected nil, got %v", typed)
	}
	if typed := As(nil); typed != nil {
		t.Fatalf("expected nil for nil input, got %v", typed)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeInvalidTransition, "cannot move order from Pending to Delivered").
		WithDetails(map[string]string{"from": "Pending", "to": "Delivered"})

	details, ok := err.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details type %T", err.Details())
	}
	if details["from"] != "Pending" || details["to"] != "Delivered" {
		t.Fatalf("unexpected details: %v", details)
	}
}

func TestDumpBuildsChain(t *testing.T) {
	inner := stdErrors.New("root cause")
	err := Wrap(CodeOutOfStock, inner, "reserving stock")

	dump := Dump(err)
	if dump.Code != CodeOutOfStock {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected chain of at least 2, got %d", len(dump.Chain))
	}
}
