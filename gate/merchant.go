package gate

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/sync/singleflight"
)

// Network is the Solana cluster a merchant's wallet is configured against.
type Network string

const (
	NetworkDevnet      Network = "devnet"
	NetworkMainnetBeta Network = "mainnet-beta"
)

// walletAddressPattern matches the shape of a Solana base58 public key.
var walletAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// MerchantConfig is fetched once from the verify service and cached for the
// lifetime of the process.
type MerchantConfig struct {
	WalletAddress string
	Network       Network
}

// validateWalletAddress checks both the base58 alphabet/length shape
// required by the spec and that the string actually decodes as base58 —
// a regex alone would accept strings that merely look right but contain,
// say, an odd run of padding that base58 rejects outright.
func validateWalletAddress(addr string) error {
	if !walletAddressPattern.MatchString(addr) {
		return fmt.Errorf("wallet address %q does not match the base58 shape", addr)
	}
	if _, err := base58.Decode(addr); err != nil {
		return fmt.Errorf("wallet address %q is not valid base58: %w", addr, err)
	}
	return nil
}

// MerchantConfigFetcher fetches a merchant's config from the verify
// service. Implemented by VerifyServiceClient; abstracted here so the
// cache can be tested without a network dependency.
type MerchantConfigFetcher interface {
	FetchMerchantConfig(ctx context.Context, apiKey string) (*MerchantConfig, error)
}

// MerchantConfigCache fetches a MerchantConfig once per distinct API key
// and holds it for the life of the process. Concurrent callers for the
// same key share a single in-flight fetch via singleflight, matching the
// spec's "blocks on first call, concurrent callers share the fetch"
// contract without a bespoke locking scheme.
type MerchantConfigCache struct {
	fetcher MerchantConfigFetcher
	group   singleflight.Group

	mu    sync.Mutex
	cache map[string]*MerchantConfig
}

func NewMerchantConfigCache(fetcher MerchantConfigFetcher) *MerchantConfigCache {
	return &MerchantConfigCache{
		fetcher: fetcher,
		cache:   make(map[string]*MerchantConfig),
	}
}

// Get returns the cached MerchantConfig for apiKey, fetching it on first
// use. A fetch failure is not cached — the next call retries.
func (c *MerchantConfigCache) Get(ctx context.Context, apiKey string) (*MerchantConfig, error) {
	c.mu.Lock()
	if cfg, ok := c.cache[apiKey]; ok {
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(apiKey, func() (interface{}, error) {
		cfg, err := c.fetcher.FetchMerchantConfig(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		if err := validateWalletAddress(cfg.WalletAddress); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[apiKey] = cfg
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MerchantConfig), nil
}
