package domovoy

import "context"

// Start begins consuming the connector's streams: state updates into the
// cache, platform events into the callback core, and connection-state
// transitions into app supervision. A dropped link stops every app; a
// recovered link starts them again, so apps always observe a live,
// warm-enough cache.
func (e *Engine) Start(ctx context.Context) error {
	if e.conn == nil {
		return nil
	}

	// Prime the cache before any app initializes.
	states, err := e.conn.GetStates(ctx)
	if err != nil {
		e.logger.Warn("priming state cache", "error", err)
	}
	for _, u := range states {
		e.cache.Ingest(u.EntityID, u.State, u.Attributes, u.Timestamp)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	e.pumpCancel = cancel
	e.pumpWG.Add(1)
	go e.pump(pumpCtx)
	return nil
}

// Stop halts stream consumption. It does not terminate apps; callers stop
// those explicitly so shutdown order stays deterministic.
func (e *Engine) Stop() {
	if e.pumpCancel == nil {
		return
	}
	e.pumpCancel()
	e.pumpWG.Wait()
	e.pumpCancel = nil
}

func (e *Engine) pump(ctx context.Context) {
	defer e.pumpWG.Done()

	updates := e.conn.Updates()
	events := e.conn.Events()
	connStates := e.conn.ConnectionStates()

	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.Deleted {
				e.cache.Evict(u.EntityID, u.Timestamp)
				continue
			}
			e.cache.Ingest(u.EntityID, u.State, u.Attributes, u.Timestamp)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.sched.PublishEvent(ev.Name, ev.Data)

		case cs, ok := <-connStates:
			if !ok {
				connStates = nil
				continue
			}
			e.onConnectionState(ctx, cs)
		}
	}
}

func (e *Engine) onConnectionState(ctx context.Context, cs ConnectionState) {
	switch cs {
	case Disconnected:
		e.logger.Warn("connector link down, stopping apps")
		e.NotifyObservers(ctx, NewCloudEvent(EventTypeConnectorDown, eventSource, nil))
		e.StopAllApps(ctx)
	case Connected:
		e.logger.Info("connector link up, starting apps")
		// The connector replays current states on reconnect before
		// signalling connected, so the cache is warm again here.
		if states, err := e.conn.GetStates(ctx); err == nil {
			for _, u := range states {
				e.cache.Ingest(u.EntityID, u.State, u.Attributes, u.Timestamp)
			}
		}
		e.NotifyObservers(ctx, NewCloudEvent(EventTypeConnectorUp, eventSource, nil))
		e.StartAllApps(ctx)
	}
}
