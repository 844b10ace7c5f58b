package gateway

import (
	"context"
	"testing"
)

func TestClientRecord_ModelAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		allowlist []string
		model     string
		want      bool
	}{
		{name: "empty allowlist allows everything", allowlist: nil, model: "gpt-4o", want: true},
		{name: "listed model", allowlist: []string{"gpt-4o", "gpt-4o-mini"}, model: "gpt-4o", want: true},
		{name: "unlisted model", allowlist: []string{"gpt-4o"}, model: "o3", want: false},
		{name: "empty model against allowlist", allowlist: []string{"gpt-4o"}, model: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &ClientRecord{ModelAllowlist: tt.allowlist}
			if got := c.ModelAllowed(tt.model); got != tt.want {
				t.Errorf("ModelAllowed(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestClientRecord_Suspended(t *testing.T) {
	t.Parallel()

	if (&ClientRecord{Status: ClientStatusActive}).Suspended() {
		t.Error("active record reported suspended")
	}
	if !(&ClientRecord{Status: ClientStatusSuspended}).Suspended() {
		t.Error("suspended record reported active")
	}
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext on empty ctx = %q, want empty", got)
	}
	if got := ClientFromContext(ctx); got != nil {
		t.Errorf("ClientFromContext on empty ctx = %v, want nil", got)
	}

	ctx = ContextWithRequestID(ctx, "abc123def456")
	if got := RequestIDFromContext(ctx); got != "abc123def456" {
		t.Errorf("RequestIDFromContext = %q, want abc123def456", got)
	}

	// Client is stored by mutating the existing meta: same context returned.
	c := &ClientRecord{ClientID: "client-1"}
	ctx2 := ContextWithClient(ctx, c)
	if ctx2 != ctx {
		t.Error("ContextWithClient allocated a new context despite existing meta")
	}
	if got := ClientFromContext(ctx2); got != c {
		t.Errorf("ClientFromContext = %v, want %v", got, c)
	}
	// Request ID survives.
	if got := RequestIDFromContext(ctx2); got != "abc123def456" {
		t.Errorf("RequestIDFromContext after client set = %q", got)
	}

	// Without prior meta a fresh context is created.
	ctx3 := ContextWithClient(context.Background(), c)
	if got := ClientFromContext(ctx3); got != c {
		t.Errorf("ClientFromContext (fresh meta) = %v, want %v", got, c)
	}
}
