package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/custodyhq/recoverd/address"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

var assetsCommand = cli.Command{
	Name:     "assets",
	Category: "Derivation",
	Usage:    "List the supported assets.",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "json",
			Usage: "print the assets as JSON instead of a table",
		},
	},
	Action: listAssets,
}

func listAssets(ctx *cli.Context) error {
	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		printRespJSON(registry.Assets())
		return nil
	}

	t := newTable(table.Row{"ID", "Name", "Family", "Coin", "Address"})
	for _, desc := range registry.Assets() {
		t.AppendRow(table.Row{
			desc.ID, desc.Name, desc.Family, desc.CoinType,
			desc.Address,
		})
	}
	t.Render()

	return nil
}

// newTable creates a table writer printing to stdout.
func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)

	return t
}

var verifyAddressCommand = cli.Command{
	Name:      "verifyaddress",
	Category:  "Derivation",
	Usage:     "Check that an address belongs to a public key.",
	ArgsUsage: "asset address pubkey",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "legacy",
			Usage: "the address uses the legacy format",
		},
		cli.BoolFlag{
			Name:  "checksum",
			Usage: "require checksum casing",
		},
		cli.BoolFlag{
			Name:  "testnet",
			Usage: "the address is a testnet address",
		},
	},
	Action: verifyAddress,
}

func verifyAddress(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "verifyaddress")
	}

	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	desc, err := registry.Lookup(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	enc, err := desc.Encoder()
	if err != nil {
		return err
	}

	pubKey, err := hex.DecodeString(ctx.Args().Get(2))
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}

	err = address.Verify(enc, ctx.Args().Get(1), pubKey, address.Options{
		Legacy:   ctx.Bool("legacy"),
		Checksum: ctx.Bool("checksum"),
		Testnet:  ctx.Bool("testnet"),
	})
	if err != nil {
		return err
	}

	fmt.Println("address matches public key")

	return nil
}
