package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/custodyhq/recoverd/backup"
	"github.com/urfave/cli"
)

var recoverCommand = cli.Command{
	Name:     "recover",
	Category: "Recovery",
	Usage:    "Recover the master keys from an encrypted backup.",
	Description: `
	Opens the backup archive with its passphrase, unwraps the key material
	with the RSA private key and prints the recovered extended public keys.
	Both passphrases are read from the terminal.

	The extended private keys are only printed if --private is set.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "archive",
			Usage: "the path to the encrypted backup archive",
		},
		cli.StringFlag{
			Name:  "rsakey",
			Usage: "the path to the PEM encoded RSA private key",
		},
		cli.BoolFlag{
			Name:  "private",
			Usage: "also print the extended private keys",
		},
	},
	Action: recoverKeys,
}

func recoverKeys(ctx *cli.Context) error {
	if !ctx.IsSet("archive") || !ctx.IsSet("rsakey") {
		return cli.ShowCommandHelp(ctx, "recover")
	}

	archive, err := os.ReadFile(ctx.String("archive"))
	if err != nil {
		return fmt.Errorf("unable to read archive: %w", err)
	}
	rsaKey, err := os.ReadFile(ctx.String("rsakey"))
	if err != nil {
		return fmt.Errorf("unable to read rsa key: %w", err)
	}

	passphrase, err := readPassword("Archive passphrase: ")
	if err != nil {
		return err
	}

	var rsaKeyPassphrase []byte
	if bytes.Contains(rsaKey, []byte("ENCRYPTED")) {
		rsaKeyPassphrase, err = readPassword("RSA key passphrase: ")
		if err != nil {
			return err
		}
	}

	keys, err := backup.Recover(context.Background(), &backup.Bundle{
		Archive:          archive,
		Passphrase:       passphrase,
		RSAKey:           rsaKey,
		RSAKeyPassphrase: rsaKeyPassphrase,
	})
	if err != nil {
		return err
	}

	if !ctx.Bool("private") {
		keys = keys.Public()
	}
	printRespJSON(keys)

	return nil
}
