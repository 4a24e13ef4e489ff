package loader

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Taxonomy(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindStoreFetch, "ipfs://Qm1", "fetch bytes", cause)

	if KindOf(err) != KindStoreFetch {
		t.Fatalf("KindOf: got %q", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is did not reach the cause")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !IsKind(wrapped, KindStoreFetch) {
		t.Fatalf("IsKind did not see through wrapping")
	}
	if KindOf(cause) != "" {
		t.Fatalf("KindOf(plain error) should be empty")
	}
	msg := err.Error()
	for _, part := range []string{"fetch bytes", "ipfs://Qm1", "boom"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("Error() %q missing %q", msg, part)
		}
	}
	var nilErr *Error
	if nilErr.Error() != "<nil>" || nilErr.Unwrap() != nil {
		t.Fatalf("nil *Error must be safe")
	}
}
