// Package keystore holds the process wide master key slot that recovery
// writes and derivation reads.
package keystore

import (
	"sync"

	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const stage = "keystore"

// Store is a single-owner cell holding at most one master key tuple. Writes
// replace the tuple atomically and are serialized with reads.
type Store struct {
	mu   sync.RWMutex
	keys keychain.MasterKeys

	// pubFile, if set, receives the public halves after every write.
	pubFile *PubKeyFile
}

// Option configures a Store.
type Option func(*Store)

// WithPubKeyFile makes the store persist XPUB and FPUB to f.
func WithPubKeyFile(f *PubKeyFile) Option {
	return func(s *Store) {
		s.pubFile = f
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the key of the given kind if one has been stored.
func (s *Store) Get(kind keychain.KeyKind) fn.Option[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v := s.keys.Get(kind); v != "" {
		return fn.Some(v)
	}

	return fn.None[string]()
}

// Set validates and stores a single key. A key whose counterpart is
// already stored must match it.
func (s *Store) Set(kind keychain.KeyKind, value string) error {
	if err := keychain.ValidateKey(kind, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.keys
	switch kind {
	case keychain.KindXPRV:
		next.XPRV = value
	case keychain.KindXPUB:
		next.XPUB = value
	case keychain.KindFPRV:
		next.FPRV = value
	case keychain.KindFPUB:
		next.FPUB = value
	default:
		return errorcodes.New(
			errorcodes.ErrCodeInvalidArgument, stage,
			"unknown key kind %v", kind,
		)
	}

	// The new key must agree with the other half of its pair.
	if err := next.Validate(); err != nil {
		return err
	}

	return s.commit(next)
}

// Load replaces the stored tuple with keys. When retainPrivate is false
// only the public halves are kept.
func (s *Store) Load(keys *keychain.MasterKeys, retainPrivate bool) error {
	next := *keys
	if !retainPrivate {
		next = *keys.Public()
	}

	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commit(next); err != nil {
		return err
	}

	log.Infof("Master keys replaced (private halves retained: %v)",
		retainPrivate)

	return nil
}

// commit installs next and persists its public halves. The caller must hold
// the write lock.
func (s *Store) commit(next keychain.MasterKeys) error {
	if s.pubFile != nil && (next.XPUB != s.keys.XPUB ||
		next.FPUB != s.keys.FPUB) {

		if err := s.pubFile.Write(next.Public()); err != nil {
			return errorcodes.Wrap(
				errorcodes.ErrCodeInternal, stage, err,
			)
		}
	}

	s.keys = next

	return nil
}

// Snapshot returns a copy of the stored tuple.
func (s *Store) Snapshot() keychain.MasterKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keys
}

// Empty reports whether no key has been stored.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keys == keychain.MasterKeys{}
}

// Restore loads the public halves from the configured key file, if any.
// A missing file leaves the store empty.
func (s *Store) Restore() error {
	if s.pubFile == nil {
		return nil
	}

	keys, err := s.pubFile.Read()
	if err != nil {
		return err
	}
	if keys == nil {
		return nil
	}

	if err := keys.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = *keys
	s.mu.Unlock()

	log.Infof("Restored public master keys from %v", s.pubFile.fileName)

	return nil
}
