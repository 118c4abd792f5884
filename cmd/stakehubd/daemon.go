// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/arbvault"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/extractor"
	"github.com/stakehub-labs/stakehub/gauges/amp"
	"github.com/stakehub-labs/stakehub/gauges/emp"
	"github.com/stakehub-labs/stakehub/health"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/staking"
	"github.com/stakehub-labs/stakehub/token"
)

// housekeeper is the sender of scheduled permissionless calls.
var housekeeper = stakehub.NamedAddress("housekeeper")

// daemon owns every engine plus the solo chain fakes backing them.
type daemon struct {
	hub       *hub.Hub
	escrow    *escrow.Escrow
	amp       *amp.Amp
	emp       *emp.Emp
	vault     *arbvault.Vault
	extractor *extractor.Extractor

	bank    *token.MemBank
	staking *staking.MemModule
	health  *health.Health

	rewardRate dec.Dec
}

// newDaemon wires the engines over partitions of the main store. The
// hub is built first, then the planner is attached once the gauges
// exist, since they need the hub as their validator set.
func newDaemon(now uint64, cfg *Config, mainDB kv.Store, events eventdb.Recorder) (*daemon, error) {
	hubCfg, err := cfg.hubConfig()
	if err != nil {
		return nil, err
	}

	bank := token.NewMemBank()
	for _, acc := range cfg.GenesisAccounts {
		addr, err := parseAddr("genesis_accounts.address", acc.Address)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("genesis_accounts.amount", acc.Amount)
		if err != nil {
			return nil, err
		}
		if err := bank.Deposit(addr, cfg.Denom, amount); err != nil {
			return nil, err
		}
	}

	stakeToken := token.NewMemLedger()
	stakingModule := staking.NewMemModule(bank, stakehub.NamedAddress("hub"), cfg.Denom, cfg.UnbondPeriod)
	for _, v := range cfg.Validators {
		stakingModule.RegisterValidator(v)
	}

	h, err := hub.New(now, kv.Bucket("hub-").NewStore(mainDB), bank, stakeToken, stakingModule, nil, hubCfg, events)
	if err != nil {
		return nil, errors.WithMessage(err, "hub")
	}

	esc, err := escrow.New(kv.Bucket("escrow-").NewStore(mainDB), stakeToken, hubCfg.Owner, events)
	if err != nil {
		return nil, errors.WithMessage(err, "escrow")
	}
	ampGauge, err := amp.New(kv.Bucket("amp-").NewStore(mainDB), esc, h, hubCfg.Owner, events)
	if err != nil {
		return nil, errors.WithMessage(err, "amp gauge")
	}
	empGauge, err := emp.New(kv.Bucket("emp-").NewStore(mainDB), h, hubCfg.Owner, events)
	if err != nil {
		return nil, errors.WithMessage(err, "emp gauge")
	}
	esc.RegisterObserver(ampGauge)
	h.SetPlanner(planner.New(ampGauge, empGauge))

	d := &daemon{
		hub:     h,
		escrow:  esc,
		amp:     ampGauge,
		emp:     empGauge,
		bank:    bank,
		staking: stakingModule,
		health:  health.New(),
	}

	if d.rewardRate, err = parseDec("reward_rate", cfg.RewardRate); err != nil {
		return nil, err
	}

	vaultCfg, err := cfg.vaultConfig()
	if err != nil {
		return nil, err
	}
	if vaultCfg != nil {
		lsd := arbvault.NewHubLSD("stakehub", h, stakeToken)
		lp := token.NewMemLedger()
		d.vault, err = arbvault.New(kv.Bucket("arbvault-").NewStore(mainDB), bank, lp, []arbvault.LSD{lsd}, *vaultCfg, events)
		if err != nil {
			return nil, errors.WithMessage(err, "arb vault")
		}
	}

	if cfg.Extractor != nil {
		sink, err := parseAddr("extractor.yield_sink", cfg.Extractor.YieldSink)
		if err != nil {
			return nil, err
		}
		fraction, err := parseDec("extractor.yield_extract_fraction", cfg.Extractor.YieldExtractFraction)
		if err != nil {
			return nil, err
		}
		d.extractor, err = extractor.New(kv.Bucket("extractor-").NewStore(mainDB), stakeToken, token.NewMemLedger(), h, extractor.Config{
			Owner:                hubCfg.Owner,
			YieldSink:            sink,
			YieldExtractFraction: fraction,
		}, events)
		if err != nil {
			return nil, errors.WithMessage(err, "extractor")
		}
	}

	return d, nil
}

// accrueRewards simulates staking yield at the configured per-tick rate.
func (d *daemon) accrueRewards() error {
	if d.rewardRate.IsZero() {
		return nil
	}
	delegations, err := d.staking.Delegations()
	if err != nil {
		return err
	}
	for _, del := range delegations {
		reward := d.rewardRate.MulInt(del.Amount)
		if !reward.IsZero() {
			d.staking.AccrueReward(del.Validator, reward)
		}
	}
	return nil
}

// tick is one housekeeping round. Steps with nothing to do are skipped,
// anything else aborts the round and marks the daemon unhealthy.
func (d *daemon) tick(now uint64) error {
	if err := d.accrueRewards(); err != nil {
		return err
	}
	if err := d.staking.ProcessUnbondings(now); err != nil {
		return err
	}
	if err := d.hub.SubmitBatch(now); err != nil &&
		!errs.Is(err, errs.KindSubmitBatchAfter) &&
		!errs.Is(err, errs.KindNothingToUnbond) {
		return errors.WithMessage(err, "submit batch")
	}
	if err := d.hub.Reconcile(now); err != nil {
		return errors.WithMessage(err, "reconcile")
	}
	if err := d.hub.Harvest(now); err != nil && !errs.Is(err, errs.KindNoTokensAvailable) {
		return errors.WithMessage(err, "harvest")
	}
	if d.extractor != nil {
		if err := d.extractor.Harvest(now, housekeeper); err != nil {
			return errors.WithMessage(err, "extractor harvest")
		}
	}
	return nil
}

// run drives housekeeping until the context is canceled.
func (d *daemon) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := uint64(time.Now().Unix())
			err := d.tick(now)
			d.health.NewTick(err)
			if err != nil {
				logger.Warn("housekeeping failed", "err", err)
			}
		}
	}
}
