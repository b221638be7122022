package assets

import (
	"sort"
	"sync"

	"github.com/custodyhq/recoverd/errorcodes"
)

const stage = "asset-registry"

// Registry maps asset identifiers to descriptors. It is filled once at
// startup and then sealed; afterwards it is read only and safe for
// concurrent lookups.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]Descriptor
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]Descriptor),
	}
}

// Register adds a descriptor. Registering an identifier twice, or
// registering anything after Seal, fails with
// ErrCodeRegistrationConflict.
func (r *Registry) Register(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return errorcodes.Wrap(
			errorcodes.ErrCodeInvalidArgument, stage, err,
		)
	}

	id := normalizeID(desc.ID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errorcodes.New(
			errorcodes.ErrCodeRegistrationConflict, stage,
			"registry is sealed",
		).WithAsset(id)
	}

	if _, ok := r.assets[id]; ok {
		return errorcodes.New(
			errorcodes.ErrCodeRegistrationConflict, stage,
			"asset already registered",
		).WithAsset(id)
	}

	desc.ID = id
	r.assets[id] = desc

	log.Debugf("Registered asset %v (%v, coin type %d, %v addresses)",
		id, desc.Family, desc.CoinType, desc.Address)

	return nil
}

// Seal makes the registry read only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sealed
}

// Lookup returns the descriptor of id, ignoring case. Unknown identifiers
// fail with ErrCodeUnknownAsset.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	key := normalizeID(id)

	r.mu.RLock()
	desc, ok := r.assets[key]
	r.mu.RUnlock()

	if !ok {
		return Descriptor{}, errorcodes.New(
			errorcodes.ErrCodeUnknownAsset, stage,
			"asset is not registered",
		).WithAsset(id)
	}

	return desc, nil
}

// Assets returns all descriptors sorted by identifier.
func (r *Registry) Assets() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.assets))
	for _, desc := range r.assets {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].ID < descs[j].ID
	})

	return descs
}
