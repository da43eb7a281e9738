package redkit

import (
	"context"
	"strings"
	"testing"
)

func TestClientListReportsRequiredFields(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("SET: %v", err)
	}

	out, err := client.Do(ctx, "CLIENT", "LIST").Text()
	if err != nil {
		t.Fatalf("CLIENT LIST: %v", err)
	}

	for _, field := range []string{"id=", "addr=", "fd=", "name=", "age=", "idle=", "flags=", "cmd="} {
		if !strings.Contains(out, field) {
			t.Errorf("expected CLIENT LIST output to contain %q, got %q", field, out)
		}
	}
}
