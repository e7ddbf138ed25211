package swapperd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// Duration decodes "30s" style strings from yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ChainConfig describes one chain the daemon watches.
type ChainConfig struct {
	// Indexer is the base URL of the chain's indexer, consulted for the
	// current height.
	Indexer string `yaml:"indexer"`

	// RedeemWithoutConfirmation treats unconfirmed redeems on this chain as
	// final, see order.Policy.
	RedeemWithoutConfirmation bool `yaml:"redeemWithoutConfirmation"`
}

type Config struct {
	// Signer is our address on the orderbook, orders are matched against it
	// to decide the role.
	Signer string `yaml:"signer"`

	// Orderbook is the host of the order feed, dialled over wss.
	Orderbook string `yaml:"orderbook"`

	// SignerService is the base URL of the transaction submitter service.
	SignerService string `yaml:"signerService"`

	// Redis backs the idempotency claims when set, otherwise claims are kept
	// in memory and lost on restart.
	Redis string `yaml:"redis"`

	// DB holds the order snapshots, an sqlite path or a postgres URL.
	DB string `yaml:"db"`

	// Listen is the address of the status feed HTTP server.
	Listen string `yaml:"listen"`

	// ClaimTTL bounds how long a submitted action blocks its own retry.
	ClaimTTL Duration `yaml:"claimTTL"`

	// PollInterval is the cadence of the pending-order refresh loop.
	PollInterval Duration `yaml:"pollInterval"`

	Chains map[swap.Chain]ChainConfig `yaml:"chains"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, config.validate()
}

func (config Config) validate() error {
	if config.Signer == "" {
		return fmt.Errorf("config missing signer")
	}
	if config.Orderbook == "" {
		return fmt.Errorf("config missing orderbook")
	}
	if config.SignerService == "" {
		return fmt.Errorf("config missing signer service")
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("config has no chains")
	}
	for chain, chainConfig := range config.Chains {
		if chainConfig.Indexer == "" {
			return fmt.Errorf("chain %v missing indexer", chain)
		}
	}
	return nil
}

func (config Config) policies() map[swap.Chain]order.Policy {
	policies := map[swap.Chain]order.Policy{}
	for chain, chainConfig := range config.Chains {
		policies[chain] = order.Policy{RedeemWithoutConfirmation: chainConfig.RedeemWithoutConfirmation}
	}
	return policies
}
