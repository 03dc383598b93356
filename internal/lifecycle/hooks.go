package lifecycle

import "context"

// Phase orders shutdown hooks. Lower phases finish before higher ones start.
type Phase int

const (
	// PhaseIngress stops accepting new work: HTTP listeners, schedulers.
	PhaseIngress Phase = iota
	// PhaseWorkers drains in-flight background work.
	PhaseWorkers
	// PhaseResources closes connections and flushes telemetry.
	PhaseResources
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
