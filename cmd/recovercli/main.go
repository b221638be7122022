package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/build"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[recovercli] %v\n", err)
	os.Exit(1)
}

func printRespJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fatal(err)
	}

	fmt.Println(string(b))
}

// loadRegistry builds the asset registry from the built-in assets and the
// optional --assetsfile.
func loadRegistry(ctx *cli.Context) (*assets.Registry, error) {
	return assets.NewRegistryFromFile(ctx.GlobalString("assetsfile"))
}

func main() {
	app := cli.NewApp()
	app.Name = "recovercli"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "recover master keys from backups and derive asset keys " +
		"offline"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "assetsfile",
			Usage: "a YAML file with asset descriptors to use in " +
				"addition to the built-in ones",
		},
	}
	app.Commands = []cli.Command{
		recoverCommand,
		deriveCommand,
		packCommand,
		assetsCommand,
		verifyAddressCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// readPassword reads a password from the terminal. This requires there to be an
// actual TTY so passing in a password from stdin won't work.
func readPassword(text string) ([]byte, error) {
	fmt.Print(text)

	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	pw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Println()
	return pw, err
}
