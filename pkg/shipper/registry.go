package shipper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry holds the carriers shipments can be booked with. The first carrier
// registered is the default until SetDefault names another one.
type Registry struct {
	mu       sync.RWMutex
	shippers map[string]Shipper
	fallback string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		shippers: make(map[string]Shipper),
	}
}

// Register adds s, replacing any carrier of the same name.
func (r *Registry) Register(s Shipper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shippers[s.Name()] = s
	if r.fallback == "" {
		r.fallback = s.Name()
	}
}

// SetDefault makes name the carrier used when none is asked for.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shippers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
	}
	r.fallback = name
	return nil
}

// Default returns the name of the default carrier, empty when none is registered.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Get returns a carrier by name. An empty name selects the default carrier.
func (r *Registry) Get(name string) (Shipper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.fallback
	}
	if s, ok := r.shippers[name]; ok {
		return s, nil
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no carrier registered", ErrCarrierNotFound)
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
}

// Names returns the registered carrier names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shippers))
	for name := range r.shippers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Quote asks the named carriers, or the default one when none are named, for
// rates in parallel. Responses come back in the order the carriers were named;
// carriers that fail are left out and their errors joined into err.
func (r *Registry) Quote(ctx context.Context, req *QuoteRequest, carriers ...string) ([]*QuoteResponse, error) {
	if len(carriers) == 0 {
		carriers = []string{""}
	}

	responses := make([]*QuoteResponse, len(carriers))
	errs := make([]error, len(carriers))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range carriers {
		g.Go(func() error {
			s, err := r.Get(name)
			if err != nil {
				errs[i] = err
				return nil
			}
			resp, err := s.GetQuote(ctx, req)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	g.Wait()

	out := make([]*QuoteResponse, 0, len(responses))
	for _, resp := range responses {
		if resp != nil {
			out = append(out, resp)
		}
	}
	return out, errors.Join(errs...)
}
