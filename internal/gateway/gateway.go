// Package gateway holds the channel adapters the dispatcher sends through.
// Each adapter covers exactly one channel's send mechanics; everything above
// it (ledger writes, fan-out, batch semantics) lives in the dispatcher.
package gateway

import (
	"context"

	"coachreach/internal/common/errors"
	"coachreach/internal/models"
)

// Adapter submits one rendered message to one address. Transport-level
// retries, if any, are the adapter's own business; the engine treats a
// returned error as a failed delivery and never resubmits.
type Adapter interface {
	Channel() models.Channel
	Submit(ctx context.Context, text, address string) (providerMessageID string, err error)
}

// Registry maps each supported channel to its adapter.
type Registry map[models.Channel]Adapter

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) Registry {
	registry := make(Registry, len(adapters))
	for _, adapter := range adapters {
		registry[adapter.Channel()] = adapter
	}
	return registry
}

// ForChannel returns the adapter for a channel.
func (r Registry) ForChannel(channel models.Channel) (Adapter, error) {
	adapter, ok := r[channel]
	if !ok {
		return nil, errors.NewInvalidChannelError(string(channel))
	}
	return adapter, nil
}
