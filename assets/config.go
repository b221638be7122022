package assets

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the layout of an asset configuration file:
//
//	assets:
//	  - id: BASE_ETH
//	    name: Base
//	    family: ecdsa
//	    coin_type: 60
//	    address: evm
type fileConfig struct {
	Assets []Descriptor `yaml:"assets"`
}

// Load reads descriptors from YAML and registers them in r. Unknown fields
// are rejected.
func Load(r *Registry, src io.Reader) error {
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)

	var cfg fileConfig
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return fmt.Errorf("unable to parse asset config: %w", err)
	}

	for _, desc := range cfg.Assets {
		if err := r.Register(desc); err != nil {
			return err
		}
	}

	log.Infof("Loaded %d assets from config", len(cfg.Assets))

	return nil
}

// LoadFile reads the asset configuration at path into r.
func LoadFile(r *Registry, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read asset config: %w", err)
	}

	return Load(r, bytes.NewReader(raw))
}

// NewRegistryFromFile builds a sealed registry with the built-in assets and
// the ones from path, if path is non-empty.
func NewRegistryFromFile(path string) (*Registry, error) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		return nil, err
	}

	if path != "" {
		if err := LoadFile(r, path); err != nil {
			return nil, err
		}
	}
	r.Seal()

	return r, nil
}
