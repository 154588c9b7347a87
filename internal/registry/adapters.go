package registry

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/adapter/htmlscrape"
	"github.com/tbbooher/argus-panoptes/internal/adapter/jsonrest"
	"github.com/tbbooher/argus-panoptes/internal/adapter/sru"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// protocolFactory constructs one Adapter instance for a system's
// AdapterConfig entry. Re-architected as a closed map of constructors
// registered at startup rather than reflection-based dispatch, per spec
// §9's redesign flag against a reflection-based registry.
type protocolFactory func(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client) adapter.Adapter

var protocolFactories = map[string]protocolFactory{
	"sru":           func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return sru.NewGeneric(cfg, t, b, c) },
	"koha":          func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return sru.NewKoha(cfg, t, b, c) },
	"enterprise":    func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return htmlscrape.NewEnterprise(cfg, t, b, c) },
	"bibliocommons": func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return htmlscrape.NewBiblioCommons(cfg, t, b, c) },
	"atriuum":       func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return htmlscrape.NewAtriuum(cfg, t, b, c) },
	"spydus":        func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return htmlscrape.NewSpydus(cfg, t, b, c) },
	"aspen":         func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return jsonrest.NewAspen(cfg, t, b, c) },
	"tlc":           func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return jsonrest.NewTLC(cfg, t, b, c) },
	"apollo":        func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return jsonrest.NewApollo(cfg, t, b, c) },
	"sierra":        func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return jsonrest.NewSierra(cfg, t, b, c) },
	"polaris":       func(cfg model.AdapterConfig, t *health.Tracker, b *breaker.Breaker, c *http.Client) adapter.Adapter { return jsonrest.NewPolaris(cfg, t, b, c) },
}

// AdapterRegistry maps a system id to its ordered (primary, then
// fallback) list of live Adapter instances, built once at startup and
// read-only during serving (spec §5).
type AdapterRegistry struct {
	bySystem map[model.LibrarySystemId][]adapter.Adapter
	systems  map[model.LibrarySystemId]model.LibrarySystem
	order    []model.LibrarySystemId
}

// BuildAdapterRegistry constructs one Breaker per (system, adapter-config)
// instance, shares the given health tracker across all of them, and wires
// each config's protocol to its concrete Adapter via protocolFactories.
func BuildAdapterRegistry(systems []model.LibrarySystem, tracker *health.Tracker, client *http.Client) (*AdapterRegistry, error) {
	reg := &AdapterRegistry{
		bySystem: make(map[model.LibrarySystemId][]adapter.Adapter, len(systems)),
		systems:  make(map[model.LibrarySystemId]model.LibrarySystem, len(systems)),
	}

	for _, system := range systems {
		if _, dup := reg.systems[system.ID]; dup {
			return nil, fmt.Errorf("duplicate system id %s", system.ID)
		}
		reg.systems[system.ID] = system
		reg.order = append(reg.order, system.ID)

		adapters := make([]adapter.Adapter, 0, len(system.Adapters))
		for _, cfg := range system.Adapters {
			factory, ok := protocolFactories[cfg.Protocol]
			if !ok {
				return nil, fmt.Errorf("system %s: unknown adapter protocol %q", system.ID, cfg.Protocol)
			}
			br := breaker.New(breaker.DefaultFailureThreshold, breaker.DefaultResetTimeout)
			adapters = append(adapters, factory(cfg, tracker, br, client))
		}
		reg.bySystem[system.ID] = adapters
	}

	sort.Slice(reg.order, func(i, j int) bool { return reg.order[i] < reg.order[j] })
	return reg, nil
}

// AdaptersFor returns the ordered adapter list (primary first, fallbacks
// after) for systemID, or nil if unknown.
func (r *AdapterRegistry) AdaptersFor(systemID model.LibrarySystemId) []adapter.Adapter {
	return r.bySystem[systemID]
}

// EnabledSystems returns every system with Enabled=true, in a stable
// (sorted-by-id) order.
func (r *AdapterRegistry) EnabledSystems() []model.LibrarySystem {
	out := make([]model.LibrarySystem, 0, len(r.order))
	for _, id := range r.order {
		system := r.systems[id]
		if system.Enabled {
			out = append(out, system)
		}
	}
	return out
}

// System returns the declarative LibrarySystem record for systemID.
func (r *AdapterRegistry) System(systemID model.LibrarySystemId) (model.LibrarySystem, bool) {
	s, ok := r.systems[systemID]
	return s, ok
}
