package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VerifyServiceClient talks to the external verify service: a bearer-
// authenticated GET to ask whether a memo has been paid, and a GET to
// fetch the calling merchant's receiving wallet and network.
//
// Adapted from the teacher's RemoteFacilitator (x402/facilitator.go): same
// http.Client-plus-slog shape, same error-wrapping discipline, but GET
// requests against the two endpoints this spec defines instead of POSTing
// an x402 verify/settle envelope — this gate never settles anything itself.
type VerifyServiceClient struct {
	verifyURL string // full URL ending in /verify
	baseURL   string // verifyURL with a trailing /verify stripped
	apiKey    string
	client    *http.Client
}

// NewVerifyServiceClient builds a client for the verify service at
// verifyURL. If verifyURL does not end with "/verify", "/verify" is
// appended, matching the SDK normalisation rule in spec §3.
func NewVerifyServiceClient(verifyURL, apiKey string, timeout time.Duration) *VerifyServiceClient {
	base := strings.TrimSuffix(verifyURL, "/verify")
	full := verifyURL
	if !strings.HasSuffix(full, "/verify") {
		full = strings.TrimRight(full, "/") + "/verify"
	}
	return &VerifyServiceClient{
		verifyURL: full,
		baseURL:   base,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
	}
}

// Verify asks the verify service whether memo has been paid. Any non-2xx
// response, network error, or malformed JSON body is treated as unpaid —
// callers fold that into a 402, not a 500, per spec §7.
func (c *VerifyServiceClient) Verify(ctx context.Context, memo string) (bool, error) {
	u := c.verifyURL + "?memo=" + url.QueryEscape(memo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("verify service request failed", "err", err)
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("verify service response read failed", "err", err)
		return false, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("verify service returned non-2xx", "status", resp.StatusCode, "body", string(body))
		return false, fmt.Errorf("verify service returned %d", resp.StatusCode)
	}

	var parsed struct {
		Paid bool `json:"paid"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Warn("verify service returned malformed JSON", "err", err, "body", string(body))
		return false, err
	}
	return parsed.Paid, nil
}

// FetchMerchantConfig fetches the wallet/network for the merchant that owns
// c.apiKey. Implements MerchantConfigFetcher.
func (c *VerifyServiceClient) FetchMerchantConfig(ctx context.Context, apiKey string) (*MerchantConfig, error) {
	u := c.baseURL + "/merchants/me"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching merchant config: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading merchant config response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("merchant config fetch returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		WalletAddress string `json:"walletAddress"`
		Network       string `json:"network"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing merchant config: %w", err)
	}

	return &MerchantConfig{
		WalletAddress: parsed.WalletAddress,
		Network:       Network(parsed.Network),
	}, nil
}
