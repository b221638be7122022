// Package derive resolves assets to derivation strategies and derives child
// keys, singly or over index ranges.
package derive

import (
	"context"
	"runtime"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/custodyhq/recoverd/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxRange is the largest number of indices a single range
	// request may cover unless configured otherwise.
	DefaultMaxRange = 1000

	stage = "derive"
)

// KeySource provides the stored master keys. keystore.Store implements it.
type KeySource interface {
	// Get returns the serialized master key of the given kind, if any.
	Get(kind keychain.KeyKind) fn.Option[string]
}

// Mode selects private or public-only derivation.
type Mode uint8

const (
	// ModePrivate derives from the extended private key and returns
	// the child private key.
	ModePrivate Mode = iota

	// ModePublic derives from the extended public key only.
	ModePublic
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModePublic {
		return "public"
	}

	return "private"
}

// Config holds the collaborators of an Engine.
type Config struct {
	// Registry resolves asset identifiers.
	Registry *assets.Registry

	// Keys provides the master keys.
	Keys KeySource

	// MaxRange bounds the size of a range request. Zero means
	// DefaultMaxRange.
	MaxRange uint32

	// Workers bounds the number of concurrent derivations of a range
	// request. Zero means one per CPU.
	Workers int
}

// Request asks for the key at one index.
type Request struct {
	// Asset is the asset identifier.
	Asset string

	// Account, Change and Index are the caller supplied path levels.
	// They are validated before use.
	Account int64
	Change  int64
	Index   int64

	// Mode selects private or public derivation.
	Mode Mode

	// Format selects address presentation and the network.
	Format address.Options

	// ExtendedKey, if set, is used instead of the stored master key.
	ExtendedKey fn.Option[string]
}

// RangeRequest asks for the keys at IndexStart..IndexEnd, both inclusive.
type RangeRequest struct {
	Asset       string
	Account     int64
	Change      int64
	IndexStart  int64
	IndexEnd    int64
	Mode        Mode
	Format      address.Options
	ExtendedKey fn.Option[string]
}

// Engine is the per request orchestrator. It holds no mutable state of its
// own and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil || cfg.Keys == nil {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInternal, stage,
			"registry and key source are required",
		)
	}
	if cfg.MaxRange == 0 {
		cfg.MaxRange = DefaultMaxRange
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	return &Engine{cfg: cfg}, nil
}

// plan is a validated request: everything needed to derive, resolved before
// any cryptographic work happens.
type plan struct {
	desc     assets.Descriptor
	strategy keychain.Strategy
	encoder  address.Encoder
	master   string
	mode     Mode
	format   address.Options
}

// resolve looks up the asset, builds the first path and fetches the master
// key.
func (e *Engine) resolve(asset string, account, change, index int64,
	mode Mode, format address.Options,
	explicit fn.Option[string]) (*plan, keypath.Path, error) {

	desc, err := e.cfg.Registry.Lookup(asset)
	if err != nil {
		return nil, keypath.Path{}, err
	}

	path, err := keypath.Build(
		keypath.PurposeBIP44, int64(desc.CoinType), account, change,
		index, format.Testnet,
	)
	if err != nil {
		return nil, keypath.Path{}, errorcodes.Annotate(err, desc.ID, "")
	}

	strategy, err := keychain.StrategyFor(desc.Family)
	if err != nil {
		return nil, path, err
	}

	if mode == ModePublic && !strategy.CanDerivePublic() {
		return nil, path, errorcodes.New(
			errorcodes.ErrCodeUnsupportedOperation, stage,
			"public-only derivation is not supported for %v "+
				"assets", desc.Family,
		).WithAsset(desc.ID).WithPath(path.String())
	}

	encoder, err := desc.Encoder()
	if err != nil {
		return nil, path, errorcodes.Wrap(
			errorcodes.ErrCodeInternal, stage, err,
		)
	}

	kind := keychain.MasterKind(desc.Family, mode == ModePrivate)
	master, err := explicit.Alt(e.cfg.Keys.Get(kind)).UnwrapOrErr(
		errorcodes.New(
			errorcodes.ErrCodeMissingMasterKey, stage,
			"no %v has been recovered", kind,
		).WithAsset(desc.ID),
	)
	if err != nil {
		return nil, path, err
	}

	return &plan{
		desc:     desc,
		strategy: strategy,
		encoder:  encoder,
		master:   master,
		mode:     mode,
		format:   format,
	}, path, nil
}

// derive runs the strategy for one path.
func (p *plan) derive(path keypath.Path) (*keychain.DerivedKey, error) {
	var (
		key *keychain.DerivedKey
		err error
	)
	switch p.mode {
	case ModePublic:
		key, err = p.strategy.DerivePublic(
			p.master, path, p.encoder, p.format,
		)
	default:
		key, err = p.strategy.DerivePrivate(
			p.master, path, p.encoder, p.format,
		)
	}
	if err != nil {
		return nil, errorcodes.Annotate(err, p.desc.ID, path.String())
	}

	return key, nil
}

// DeriveOne derives the key at a single index.
func (e *Engine) DeriveOne(req Request) (*keychain.DerivedKey, error) {
	p, path, err := e.resolve(
		req.Asset, req.Account, req.Change, req.Index, req.Mode,
		req.Format, req.ExtendedKey,
	)
	if err != nil {
		return nil, err
	}

	key, err := p.derive(path)
	if err != nil {
		return nil, err
	}

	log.Debugf("Derived %v key for %v at %v", req.Mode, p.desc.ID, path)

	return key, nil
}

// DeriveRange derives every index of the range in ascending order. Indices
// are derived concurrently; the result is ordered by index regardless.
// Either every key is returned or none: on error or cancellation partial
// results are wiped.
func (e *Engine) DeriveRange(ctx context.Context,
	req RangeRequest) ([]*keychain.DerivedKey, error) {

	if req.IndexEnd < req.IndexStart {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInvalidRange, stage,
			"index end %d is below index start %d", req.IndexEnd,
			req.IndexStart,
		).WithAsset(req.Asset)
	}

	p, first, err := e.resolve(
		req.Asset, req.Account, req.Change, req.IndexStart, req.Mode,
		req.Format, req.ExtendedKey,
	)
	if err != nil {
		return nil, err
	}

	// The start index was validated by resolve, checking the end covers
	// the whole range.
	if req.IndexEnd >= keypath.HardenedKeyStart {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"index end %d is not below the hardened boundary",
			req.IndexEnd,
		).WithAsset(p.desc.ID)
	}

	count := req.IndexEnd - req.IndexStart + 1
	if count > int64(e.cfg.MaxRange) {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInvalidRange, stage,
			"range covers %d indices, at most %d allowed", count,
			e.cfg.MaxRange,
		).WithAsset(p.desc.ID)
	}

	results := make([]*keychain.DerivedKey, count)
	wipe := func() {
		for _, key := range results {
			if key != nil {
				key.Zero()
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range results {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			path, err := first.WithIndex(first.Index + uint32(i))
			if err != nil {
				return err
			}

			key, err := p.derive(path)
			if err != nil {
				return err
			}
			results[i] = key

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		wipe()
		return nil, err
	}

	// The parent context may have been cancelled after the last worker
	// finished; honour it so callers never get a late result.
	if err := ctx.Err(); err != nil {
		wipe()
		return nil, err
	}

	log.Debugf("Derived %d %v keys for %v from %v", count, req.Mode,
		p.desc.ID, first)

	return results, nil
}
