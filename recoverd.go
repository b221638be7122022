// Package recoverd is the daemon that recovers master keys from encrypted
// backups and serves key derivation over HTTP.
package recoverd

import (
	"fmt"

	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/build"
	"github.com/custodyhq/recoverd/keystore"
	"github.com/custodyhq/recoverd/signal"
)

// Main is the true entry point for recoverd. It blocks until the interceptor
// signals a shutdown.
func Main(cfg *Config, interceptor signal.Interceptor) error {
	defer func() {
		rcvdLog.Info("Shutdown complete")
		if err := cfg.LogRotator.Close(); err != nil {
			rcvdLog.Errorf("Could not close log rotator: %v", err)
		}
	}()

	rcvdLog.Infof("Version: %s commit=%s", build.Version(), build.Commit)

	registry, err := assets.NewRegistryFromFile(cfg.Assets.File)
	if err != nil {
		return fmt.Errorf("unable to build asset registry: %w", err)
	}
	rcvdLog.Infof("Asset registry sealed with %d assets",
		len(registry.Assets()))

	var storeOpts []keystore.Option
	if cfg.Keystore.PersistPub {
		storeOpts = append(storeOpts, keystore.WithPubKeyFile(
			keystore.NewPubKeyFile(cfg.pubKeyFilePath()),
		))
	}
	store := keystore.New(storeOpts...)
	if err := store.Restore(); err != nil {
		return fmt.Errorf("unable to restore public keys: %w", err)
	}

	server, err := newServer(cfg, registry, store)
	if err != nil {
		return fmt.Errorf("unable to create server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("unable to start server: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			rcvdLog.Errorf("Unable to stop server: %v", err)
		}
	}()

	// Wait for shutdown signal from either a graceful server stop or from
	// the interrupt handler.
	<-interceptor.ShutdownChannel()

	return nil
}
