package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInternal:       http.StatusInternalServerError,
		KindBadRequest:     http.StatusBadRequest,
		KindValidation:     http.StatusUnprocessableEntity,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindNotFound:       http.StatusNotFound,
		KindRateLimited:    http.StatusTooManyRequests,
		KindUnavailable:    http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Fatalf("%s: status %d, want %d", kind, got, want)
		}
	}
}

func TestAsUnwrapsChains(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("handler: %w", Unavailable("store down", cause))

	e, ok := As(err)
	if !ok {
		t.Fatalf("expected *Error in chain")
	}
	if e.Kind != KindUnavailable {
		t.Fatalf("unexpected kind %s", e.Kind)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost in chain")
	}
	if _, ok := As(cause); ok {
		t.Fatalf("plain error must not convert")
	}
}
