package events

import (
	"context"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long callers should wait before tearing down
// the exporter so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is
// never blocked. Errors are logged. The goroutine uses a detached context so
// request cancellation does not abort an in-flight emit.
//
// A nil emitter is fine; EmitAsync returns without starting a goroutine.
func EmitAsync(emitter Emitter, ev Event) {
	if emitter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, ev); err != nil {
			log.Printf("events: async emit failed: %v", err)
		}
	}()
}
