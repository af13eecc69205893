package dispatch

import (
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

// Registry maps every platform to an adapter. Platforms without a registered
// adapter get an UnsupportedAdapter so lookups never miss.
type Registry struct {
	live      map[model.Platform]repository.IPublisher
	simulated map[model.Platform]repository.IPublisher
}

func NewRegistry(adapters ...repository.IPublisher) *Registry {
	r := &Registry{
		live:      map[model.Platform]repository.IPublisher{},
		simulated: map[model.Platform]repository.IPublisher{},
	}
	for _, a := range adapters {
		if a != nil {
			r.live[a.Platform()] = a
		}
	}
	for _, p := range model.AllPlatforms() {
		if _, ok := r.live[p]; !ok {
			r.live[p] = NewUnsupportedAdapter(p)
		}
		r.simulated[p] = NewSimulatedAdapter(p)
	}
	return r
}

// For picks the adapter for the platform and the credential's environment.
func (r *Registry) For(p model.Platform, cred *model.Credential) repository.IPublisher {
	if cred.IsSimulated() {
		if a, ok := r.simulated[p]; ok {
			return a
		}
		return NewSimulatedAdapter(p)
	}
	if a, ok := r.live[p]; ok {
		return a
	}
	return NewUnsupportedAdapter(p)
}
