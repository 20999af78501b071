package channel

import (
	"strings"

	"github.com/smallbiznis/scambio/internal/channel/domain"
)

// Registry resolves channel adapters by code.
type Registry struct {
	factories map[string]domain.ChannelFactory
}

func NewRegistry(factories ...domain.ChannelFactory) *Registry {
	registry := &Registry{factories: map[string]domain.ChannelFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(factory.Code()))
		if code == "" {
			continue
		}
		registry.factories[code] = factory
	}
	return registry
}

func (r *Registry) ChannelExists(code string) bool {
	if r == nil {
		return false
	}
	code = strings.ToLower(strings.TrimSpace(code))
	_, ok := r.factories[code]
	return ok
}

func (r *Registry) NewChannel(code string, cfg domain.ChannelConfig) (domain.Channel, error) {
	if r == nil {
		return nil, domain.ErrChannelNotFound
	}
	code = strings.ToLower(strings.TrimSpace(code))
	factory, ok := r.factories[code]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return factory.NewChannel(cfg)
}
