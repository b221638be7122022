package main

import (
	"context"
	"strings"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/derive"
	"github.com/custodyhq/recoverd/keystore"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/urfave/cli"
)

var deriveCommand = cli.Command{
	Name:      "derive",
	Category:  "Derivation",
	Usage:     "Derive asset keys and addresses from an extended key.",
	ArgsUsage: "asset",
	Description: `
	Derives the keys at m/44/coin_type/account/change/index for every index
	from --start to --end. The extended key is read from the terminal
	unless --key is given. An xprv or fprv derives private keys; with
	--public only public keys are derived, from an xpub or from the public
	half of an xprv.

	Derivation from an fpub is not possible: Ed25519 child keys can only be
	derived from the private key.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "key",
			Usage: "the extended key to derive from",
		},
		cli.Int64Flag{
			Name:  "account",
			Usage: "the account level of the path",
		},
		cli.Int64Flag{
			Name:  "change",
			Usage: "the change level of the path",
		},
		cli.Int64Flag{
			Name:  "start",
			Usage: "the first index to derive",
		},
		cli.Int64Flag{
			Name:  "end",
			Usage: "the last index to derive, defaults to --start",
		},
		cli.BoolFlag{
			Name:  "public",
			Usage: "derive public keys only",
		},
		cli.BoolFlag{
			Name:  "legacy",
			Usage: "use the legacy address format",
		},
		cli.BoolFlag{
			Name:  "checksum",
			Usage: "use checksum casing for addresses that support it",
		},
		cli.BoolFlag{
			Name:  "testnet",
			Usage: "derive testnet keys and addresses",
		},
		cli.BoolFlag{
			Name:  "table",
			Usage: "print the keys as a table instead of JSON",
		},
	},
	Action: deriveKeys,
}

type derivedKey struct {
	Path       string `json:"path"`
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

func deriveKeys(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "derive")
	}

	key := ctx.String("key")
	if key == "" {
		raw, err := readPassword("Extended key: ")
		if err != nil {
			return err
		}
		key = strings.TrimSpace(string(raw))
	}

	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	// The key comes from the command line, the store stays empty.
	engine, err := derive.New(derive.Config{
		Registry: registry,
		Keys:     keystore.New(),
	})
	if err != nil {
		return err
	}

	mode := derive.ModePrivate
	if ctx.Bool("public") {
		mode = derive.ModePublic
	}

	start := ctx.Int64("start")
	end := ctx.Int64("end")
	if !ctx.IsSet("end") {
		end = start
	}

	keys, err := engine.DeriveRange(context.Background(), derive.RangeRequest{
		Asset:      ctx.Args().First(),
		Account:    ctx.Int64("account"),
		Change:     ctx.Int64("change"),
		IndexStart: start,
		IndexEnd:   end,
		Mode:       mode,
		Format: address.Options{
			Legacy:   ctx.Bool("legacy"),
			Checksum: ctx.Bool("checksum"),
			Testnet:  ctx.Bool("testnet"),
		},
		ExtendedKey: fn.Some(key),
	})
	if err != nil {
		return err
	}

	resp := make([]derivedKey, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, derivedKey{
			Path:       k.Path.String(),
			PrivateKey: k.PrivKeyHex().UnwrapOr(""),
			PublicKey:  k.PubKeyHex(),
			Address:    k.Address,
		})
		k.Zero()
	}

	if !ctx.Bool("table") {
		printRespJSON(resp)
		return nil
	}

	t := newTable(table.Row{"Path", "Address", "Public key", "Private key"})
	for _, k := range resp {
		t.AppendRow(table.Row{
			k.Path, k.Address, k.PublicKey, k.PrivateKey,
		})
	}
	t.Render()

	return nil
}
