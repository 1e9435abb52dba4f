package main

import (
	"log/slog"
	"sort"

	"nftlend/core/events"
)

// logEmitter writes every committed ledger event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{"type", evt.EventType()}
	if payload, ok := evt.(events.Payload); ok {
		if rendered := payload.Event(); rendered != nil {
			keys := make([]string, 0, len(rendered.Attributes))
			for k := range rendered.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				args = append(args, k, rendered.Attributes[k])
			}
		}
	}
	e.logger.Info("ledger event", args...)
}
