package obs

import (
	"context"
	"testing"
)

func TestInitTracingRejectsHostlessEndpoint(t *testing.T) {
	if _, err := InitTracing(context.Background(), "http://", "taskdeck-api", "test"); err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}

func TestInitTracingLocal(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "taskdeck-api", "test")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
