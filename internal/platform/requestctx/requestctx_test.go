package requestctx

import (
	"context"
	"testing"
)

func TestRequestIDFromContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "passkeyd-1")
	if got := RequestIDFromContext(ctx); got != "passkeyd-1" {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, "passkeyd-1")
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestRequestIDFromContextNil(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract.
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
}

func TestWithRequestIDNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract.
	ctx := WithRequestID(nil, "passkeyd-2")
	if got := RequestIDFromContext(ctx); got != "passkeyd-2" {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, "passkeyd-2")
	}
}
