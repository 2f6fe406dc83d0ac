// Command chainstate maintains a validated block chain and its coin database in a
// data folder. Blocks come in through bootstrap or block files; the active chain can
// be verified, inspected and steered by invalidating or reconsidering blocks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsv-blockchain/chainstate/daemon"
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "chainstate"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	app := &cli.App{
		Name:    progname,
		Usage:   "validate blocks into a chain state and its coin database",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "network", Usage: "mainnet, testnet or regtest"},
			&cli.StringFlag{Name: "datadir", Usage: "data folder holding the block files, the block index and the coins"},
			&cli.StringFlag{Name: "loglevel", Usage: "DEBUG, INFO, WARN or ERROR"},
			&cli.StringFlag{Name: "utxostore", Usage: "coin database backend: leveldb or memory"},
			&cli.Int64Flag{Name: "dbcache", Usage: "coin cache budget in MiB"},
			&cli.Int64Flag{Name: "prune", Usage: "prune block files down to this many MiB (0 disables)"},
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import blocks from bootstrap or block files",
				ArgsUsage: "FILE...",
				Action:    importFiles,
			},
			{
				Name:  "verify",
				Usage: "Verify the top of the active chain against the stored blocks and coins",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "level", Value: 3, Usage: "thoroughness, 0 to 4"},
					&cli.IntFlag{Name: "depth", Value: 288, Usage: "number of blocks to check, 0 for all"},
				},
				Action: verify,
			},
			{
				Name:   "info",
				Usage:  "Print the state of the active chain",
				Action: info,
			},
			{
				Name:      "invalidate",
				Usage:     "Mark a block invalid and switch to the best chain without it",
				ArgsUsage: "HASH",
				Action:    invalidate,
			},
			{
				Name:      "reconsider",
				Usage:     "Clear the invalid mark of a block and its descendants",
				ArgsUsage: "HASH",
				Action:    reconsider,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
		os.Exit(1)
	}
}

// applyFlags copies the global flags into the gocore configuration the settings are
// read from.
func applyFlags(c *cli.Context) {
	for flag, key := range map[string]string{
		"network":   "network",
		"datadir":   "dataFolder",
		"loglevel":  "logLevel",
		"utxostore": "utxostore_backend",
		"dbcache":   "dbcache",
		"prune":     "prune",
	} {
		if c.IsSet(flag) {
			gocore.Config().Set(key, fmt.Sprint(c.Value(flag)))
		}
	}
}

// withEngine starts an engine on the configured data folder, runs fn and stops the
// engine again, writing everything to disk. adjust may change the settings first.
func withEngine(c *cli.Context, adjust func(s *settings.Settings), fn func(ctx context.Context, e *daemon.Engine) error) error {
	applyFlags(c)

	tSettings, err := settings.Load()
	if err != nil {
		return err
	}

	if adjust != nil {
		adjust(tSettings)
	}

	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := daemon.New(ctx, logger, tSettings)
	if err != nil {
		return err
	}

	if err = e.Start(ctx); err != nil {
		_ = e.Stop(context.Background())
		return err
	}

	runErr := fn(ctx, e)

	// shut down cleanly even after an interrupt
	if err = e.Stop(context.Background()); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}

func hashArg(c *cli.Context) (*chainhash.Hash, error) {
	if c.NArg() != 1 {
		return nil, errors.NewInvalidArgumentError("expected one block hash, got %d arguments", c.NArg())
	}

	hash, err := chainhash.NewHashFromStr(c.Args().First())
	if err != nil {
		return nil, errors.NewInvalidArgumentError("bad block hash %q", c.Args().First(), err)
	}

	return hash, nil
}

func importFiles(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.NewInvalidArgumentError("no files to import")
	}

	return withEngine(c, nil, func(ctx context.Context, e *daemon.Engine) error {
		total := 0

		for _, path := range c.Args().Slice() {
			n, err := e.ImportFile(ctx, path)
			total += n

			if err != nil {
				return err
			}

			fmt.Printf("%s: %d blocks\n", path, n)
		}

		fmt.Printf("imported %d blocks, height %d\n", total, e.ChainState().Height())

		return nil
	})
}

func verify(c *cli.Context) error {
	skipStartupCheck := func(s *settings.Settings) {
		s.BlockChain.CheckLevel = 0
		s.BlockChain.CheckBlocks = 0
	}

	return withEngine(c, skipStartupCheck, func(ctx context.Context, e *daemon.Engine) error {
		if err := e.ChainState().VerifyDB(ctx, c.Int("level"), c.Int("depth")); err != nil {
			return err
		}

		fmt.Println("no inconsistencies found")

		return nil
	})
}

func info(c *cli.Context) error {
	return withEngine(c, nil, func(_ context.Context, e *daemon.Engine) error {
		printInfo(e.ChainState().Info())
		return nil
	})
}

func printInfo(info *blockchain.ChainInfo) {
	fmt.Printf("network:            %s\n", info.Network)
	fmt.Printf("state:              %s\n", info.State)
	fmt.Printf("height:             %d\n", info.Height)
	fmt.Printf("best block:         %s\n", info.BestHash)
	fmt.Printf("headers:            %d\n", info.Headers)
	fmt.Printf("known blocks:       %d\n", info.KnownBlocks)
	fmt.Printf("difficulty:         %g\n", info.Difficulty)
	fmt.Printf("median time:        %d\n", info.MedianTime)
	fmt.Printf("chain work:         %064x\n", info.ChainWork)
	fmt.Printf("initial download:   %t\n", info.InitialBlockDownload)
	fmt.Printf("pruned:             %t\n", info.Pruned)
	fmt.Printf("block files:        %d bytes\n", info.BlockFilesBytes)
	fmt.Printf("coin cache:         %d entries, %d bytes\n", info.CoinCacheEntries, info.CoinCacheBytes)
}

func invalidate(c *cli.Context) error {
	hash, err := hashArg(c)
	if err != nil {
		return err
	}

	return withEngine(c, nil, func(ctx context.Context, e *daemon.Engine) error {
		if err := e.ChainState().InvalidateBlock(ctx, hash); err != nil {
			return err
		}

		fmt.Printf("invalidated %s, tip now %s at height %d\n", hash, e.ChainState().Tip().Hash, e.ChainState().Height())

		return nil
	})
}

func reconsider(c *cli.Context) error {
	hash, err := hashArg(c)
	if err != nil {
		return err
	}

	return withEngine(c, nil, func(ctx context.Context, e *daemon.Engine) error {
		if err := e.ChainState().ReconsiderBlock(ctx, hash); err != nil {
			return err
		}

		fmt.Printf("reconsidered %s, tip now %s at height %d\n", hash, e.ChainState().Tip().Hash, e.ChainState().Height())

		return nil
	})
}
