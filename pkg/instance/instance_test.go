package instance

import "testing"

func TestGetIDPrefersInstanceID(t *testing.T) {
	t.Setenv("WORKER_ID", "worker-7")
	if got := GetID(); got != "worker-7" {
		t.Fatalf("expected worker id, got %q", got)
	}
	t.Setenv("STOREFRONT_INSTANCE_ID", "api-1")
	if got := GetID(); got != "api-1" {
		t.Fatalf("expected instance id, got %q", got)
	}
}
