// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stakehub-labs/stakehub/api"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/log"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "stakehubd")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "stakehubd",
		Usage:     "StakeHub liquid staking daemon",
		Copyright: "2025 The StakeHub developers",
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			memFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableAPILogsFlag,
			enableMetricsFlag,
			pprofFlag,
		},
		Action: runAction,
		Commands: []cli.Command{
			{
				Name:  "config",
				Usage: "configuration utilities",
				Subcommands: []cli.Command{
					{
						Name:  "check",
						Usage: "validate a configuration file without starting the daemon",
						Flags: []cli.Flag{
							configFlag,
						},
						Action: configCheckAction,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	mainDB, events, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()
	defer func() { logger.Info("closing event database..."); events.Close() }()

	now := uint64(time.Now().Unix())
	d, err := newDaemon(now, cfg, mainDB, events)
	if err != nil {
		return err
	}

	handler, apiCloser := api.New(api.Engines{
		Hub:       d.hub,
		Escrow:    d.escrow,
		Amp:       d.amp,
		Emp:       d.emp,
		Vault:     d.vault,
		Extractor: d.extractor,
		EventDB:   events,
		Health:    d.health,
	}, func() uint64 { return uint64(time.Now().Unix()) }, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
	})
	defer apiCloser()

	listener, err := net.Listen("tcp", ctx.String(apiAddrFlag.Name))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("API server started", "addr", listener.Addr())
		d.health.APIReadyStatus(true)
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return d.run(groupCtx, time.Duration(cfg.HousekeepingSeconds)*time.Second)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		d.health.APIReadyStatus(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func configCheckAction(ctx *cli.Context) error {
	path := ctx.String(configFlag.Name)
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if _, err := cfg.hubConfig(); err != nil {
		return err
	}
	if _, err := cfg.vaultConfig(); err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", path)
	return nil
}

func openStores(ctx *cli.Context) (kv.StoreCloser, *eventdb.EventDB, error) {
	if ctx.Bool(memFlag.Name) {
		events, err := eventdb.NewMem()
		if err != nil {
			return nil, nil, err
		}
		return kv.NewMem(), events, nil
	}
	dataDir, err := makeDataDir(ctx)
	if err != nil {
		return nil, nil, err
	}
	mainDB, err := kv.New(dataDir+"/main.db", 128)
	if err != nil {
		return nil, nil, err
	}
	events, err := eventdb.New(dataDir + "/events.db")
	if err != nil {
		mainDB.Close()
		return nil, nil, err
	}
	return mainDB, events, nil
}
