// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"math/big"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakehub-labs/stakehub/arbvault"
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// Config is the on-disk protocol configuration. Amount and fee fields
// are strings so yaml never rounds them through floats.
type Config struct {
	Denom             string   `yaml:"denom"`
	Owner             string   `yaml:"owner"`
	FeeSink           string   `yaml:"fee_sink"`
	EpochPeriod       uint64   `yaml:"epoch_period"`
	UnbondPeriod      uint64   `yaml:"unbond_period"`
	ProtocolRewardFee string   `yaml:"protocol_reward_fee"`
	Validators        []string `yaml:"validators"`

	GenesisAccounts []GenesisAccount `yaml:"genesis_accounts"`

	// RewardRate is the per-tick solo reward accrual, as a fraction of
	// the bonded stake. Zero disables accrual.
	RewardRate string `yaml:"reward_rate"`

	Strategy *StrategyConfig `yaml:"strategy"`

	HousekeepingSeconds uint64 `yaml:"housekeeping_seconds"`

	Vault     *VaultConfig     `yaml:"vault"`
	Extractor *ExtractorConfig `yaml:"extractor"`
}

type GenesisAccount struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// StrategyConfig selects the delegation planning mode. Absent means
// uniform distribution.
type StrategyConfig struct {
	Mode             string `yaml:"mode"` // uniform | gauges
	AmpFactorBPS     uint16 `yaml:"amp_factor_bps"`
	MinDelegationBPS uint16 `yaml:"min_delegation_bps"`
	MaxDelegationBPS uint16 `yaml:"max_delegation_bps"`
	ValidatorCount   uint8  `yaml:"validator_count"`
	UseEmp           bool   `yaml:"use_emp"`
}

type VaultConfig struct {
	UnbondPeriod         uint64            `yaml:"unbond_period"`
	PerformanceFee       string            `yaml:"performance_fee"`
	WithdrawFee          string            `yaml:"withdraw_fee"`
	ImmediateWithdrawFee string            `yaml:"immediate_withdraw_fee"`
	Steps                []UtilizationStep `yaml:"utilization_steps"`
	Whitelist            []string          `yaml:"whitelist"`
}

type UtilizationStep struct {
	WantedProfit  string `yaml:"wanted_profit"`
	TakeableShare string `yaml:"takeable_share"`
}

type ExtractorConfig struct {
	YieldSink            string `yaml:"yield_sink"`
	YieldExtractFraction string `yaml:"yield_extract_fraction"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithMessage(err, "parse config")
	}
	if cfg.HousekeepingSeconds == 0 {
		cfg.HousekeepingSeconds = 60
	}
	return &cfg, nil
}

func parseAddr(name, s string) (stakehub.Address, error) {
	if s == "" {
		return stakehub.Address{}, errors.Errorf("%s: missing address", name)
	}
	addr, err := stakehub.ParseAddress(s)
	if err != nil {
		return stakehub.Address{}, errors.WithMessage(err, name)
	}
	return *addr, nil
}

func parseDec(name, s string) (dec.Dec, error) {
	if s == "" {
		return dec.Zero(), nil
	}
	d, err := dec.Parse(s)
	if err != nil {
		return dec.Dec{}, errors.WithMessage(err, name)
	}
	return d, nil
}

func parseAmount(name, s string) (bn.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return bn.Int{}, errors.Errorf("%s: invalid amount %q", name, s)
	}
	return bn.FromBig(v), nil
}

func (c *Config) strategy() (planner.Strategy, error) {
	if c.Strategy == nil || c.Strategy.Mode == "" || c.Strategy.Mode == "uniform" {
		return planner.UniformStrategy(), nil
	}
	if c.Strategy.Mode != "gauges" {
		return planner.Strategy{}, errors.Errorf("strategy.mode: unknown mode %q", c.Strategy.Mode)
	}
	s := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     c.Strategy.AmpFactorBPS,
		MinDelegationBPS: c.Strategy.MinDelegationBPS,
		MaxDelegationBPS: c.Strategy.MaxDelegationBPS,
		ValidatorCount:   c.Strategy.ValidatorCount,
		UseEmp:           c.Strategy.UseEmp,
	})
	if err := s.Validate(); err != nil {
		return planner.Strategy{}, errors.WithMessage(err, "strategy")
	}
	return s, nil
}

// hubConfig converts the yaml fields into the staking engine config.
func (c *Config) hubConfig() (hub.Config, error) {
	owner, err := parseAddr("owner", c.Owner)
	if err != nil {
		return hub.Config{}, err
	}
	feeSink, err := parseAddr("fee_sink", c.FeeSink)
	if err != nil {
		return hub.Config{}, err
	}
	fee, err := parseDec("protocol_reward_fee", c.ProtocolRewardFee)
	if err != nil {
		return hub.Config{}, err
	}
	if c.Denom == "" {
		return hub.Config{}, errors.New("denom: must not be empty")
	}
	if len(c.Validators) == 0 {
		return hub.Config{}, errors.New("validators: must not be empty")
	}
	strategy, err := c.strategy()
	if err != nil {
		return hub.Config{}, err
	}
	return hub.Config{
		Owner:        owner,
		Denom:        c.Denom,
		EpochPeriod:  c.EpochPeriod,
		UnbondPeriod: c.UnbondPeriod,
		Validators:   c.Validators,
		FeeConfig: hub.FeeConfig{
			FeeSink:           feeSink,
			ProtocolRewardFee: fee,
		},
		Strategy: strategy,
	}, nil
}

// vaultConfig converts the yaml fields into the arb vault config; nil
// when the vault section is absent.
func (c *Config) vaultConfig() (*arbvault.Config, error) {
	if c.Vault == nil {
		return nil, nil
	}
	owner, err := parseAddr("owner", c.Owner)
	if err != nil {
		return nil, err
	}
	feeSink, err := parseAddr("fee_sink", c.FeeSink)
	if err != nil {
		return nil, err
	}
	fees := arbvault.FeeConfig{FeeSink: feeSink}
	if fees.PerformanceFee, err = parseDec("vault.performance_fee", c.Vault.PerformanceFee); err != nil {
		return nil, err
	}
	if fees.WithdrawFee, err = parseDec("vault.withdraw_fee", c.Vault.WithdrawFee); err != nil {
		return nil, err
	}
	if fees.ImmediateWithdrawFee, err = parseDec("vault.immediate_withdraw_fee", c.Vault.ImmediateWithdrawFee); err != nil {
		return nil, err
	}

	steps := make([]arbvault.UtilizationStep, 0, len(c.Vault.Steps))
	for _, s := range c.Vault.Steps {
		profit, err := parseDec("vault.utilization_steps.wanted_profit", s.WantedProfit)
		if err != nil {
			return nil, err
		}
		share, err := parseDec("vault.utilization_steps.takeable_share", s.TakeableShare)
		if err != nil {
			return nil, err
		}
		steps = append(steps, arbvault.UtilizationStep{WantedProfit: profit, TakeableShare: share})
	}

	whitelist := make([]stakehub.Address, 0, len(c.Vault.Whitelist))
	for _, w := range c.Vault.Whitelist {
		addr, err := parseAddr("vault.whitelist", w)
		if err != nil {
			return nil, err
		}
		whitelist = append(whitelist, addr)
	}

	return &arbvault.Config{
		Owner:        owner,
		UToken:       c.Denom,
		UnbondPeriod: c.Vault.UnbondPeriod,
		Steps:        steps,
		FeeConfig:    fees,
		Whitelist:    whitelist,
	}, nil
}
