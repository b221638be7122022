package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/custodyhq/recoverd/backup"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/urfave/cli"
)

var packCommand = cli.Command{
	Name:     "pack",
	Category: "Recovery",
	Usage:    "Build an encrypted backup from extended private keys.",
	Description: `
	Reads the master xprv and fprv from the terminal, wraps them to the RSA
	public key and seals the result under a passphrase. The archive can be
	opened again with the recover command and the matching RSA private key.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name: "rsakey",
			Usage: "the path to the PEM encoded RSA public key (a " +
				"private key is accepted as well)",
		},
		cli.StringFlag{
			Name:  "out",
			Usage: "the path to write the archive to",
		},
	},
	Action: packKeys,
}

func packKeys(ctx *cli.Context) error {
	if !ctx.IsSet("rsakey") || !ctx.IsSet("out") {
		return cli.ShowCommandHelp(ctx, "pack")
	}

	rsaKey, err := os.ReadFile(ctx.String("rsakey"))
	if err != nil {
		return fmt.Errorf("unable to read rsa key: %w", err)
	}

	var rsaKeyPassphrase []byte
	if bytes.Contains(rsaKey, []byte("ENCRYPTED")) {
		rsaKeyPassphrase, err = readPassword("RSA key passphrase: ")
		if err != nil {
			return err
		}
	}

	pub, err := backup.ParseRSAPublicKey(rsaKey, rsaKeyPassphrase)
	if err != nil {
		return err
	}

	xprv, err := readPassword("Master xprv: ")
	if err != nil {
		return err
	}
	fprv, err := readPassword("Master fprv: ")
	if err != nil {
		return err
	}

	secrets, err := keychain.SecretsFromMasterKeys(&keychain.MasterKeys{
		XPRV: strings.TrimSpace(string(xprv)),
		FPRV: strings.TrimSpace(string(fprv)),
	})
	if err != nil {
		return err
	}
	defer secrets.Zero()

	passphrase, err := readPassword("Archive passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if !bytes.Equal(passphrase, confirm) {
		return errors.New("passphrases do not match")
	}
	if len(passphrase) == 0 {
		return errors.New("passphrase must not be empty")
	}

	archive, err := backup.Pack(secrets, pub, passphrase)
	if err != nil {
		return err
	}

	err = os.WriteFile(ctx.String("out"), archive, 0600)
	if err != nil {
		return fmt.Errorf("unable to write archive: %w", err)
	}

	keys, err := secrets.MasterKeys()
	if err != nil {
		return err
	}
	printRespJSON(keys.Public())

	return nil
}
