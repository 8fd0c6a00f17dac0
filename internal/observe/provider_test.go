package observe

import (
	"context"
	"testing"
)

func TestInitProvider_ShutdownClean(t *testing.T) {
	// Registers global providers; not parallel.
	ctx := context.Background()

	shutdown, err := InitProvider(ctx, ProviderConfig{
		ServiceName:    "voicewire-test",
		ServiceVersion: "0.0.0-test",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
