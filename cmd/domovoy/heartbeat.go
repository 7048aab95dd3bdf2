package main

import (
	"context"
	"time"

	"github.com/carlos-sarmiento/domovoy"
)

// heartbeat is a minimal example app: it logs once a minute and reacts to
// its own pulses, showing both timer and event callbacks.
type heartbeat struct {
	rt *domovoy.Runtime
}

func newHeartbeat(rt *domovoy.Runtime) domovoy.App {
	return &heartbeat{rt: rt}
}

func (h *heartbeat) Initialize(ctx context.Context) error {
	if _, err := h.rt.Callbacks.RunEvery(time.Minute, time.Time{}, h.pulse); err != nil {
		return err
	}
	_, err := h.rt.Callbacks.ListenEvent([]string{"heartbeat.pulse"}, h.onPulse)
	return err
}

func (h *heartbeat) Finalize(ctx context.Context) error {
	h.rt.Log.Info("heartbeat stopping")
	return nil
}

func (h *heartbeat) pulse(ctx context.Context) error {
	return h.rt.Conn.FireEvent(ctx, "heartbeat.pulse", map[string]any{"at": time.Now().Format(time.RFC3339)})
}

func (h *heartbeat) onPulse(ctx context.Context, inv domovoy.Invocation) error {
	h.rt.Log.Info("pulse", "at", inv.Data["at"])
	return nil
}
