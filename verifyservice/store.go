// Package verifyservice is a reference implementation of the external
// verify service that gate.VerifyServiceClient talks to: it watches a
// merchant's Solana wallet for incoming USDC transfers and answers
// "has this memo been paid" over HTTP. It is never imported by package
// gate — the two communicate only over the HTTP contract in spec.md §6.
package verifyservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("verifyservice: not found")

// Merchant is a registered API consumer: a wallet address, network, and
// the bearer key hash used to authenticate its requests.
type Merchant struct {
	ID            uuid.UUID
	APIKeyHash    string
	WalletAddress string
	Network       string
	MinPayment    string
	CreatedAt     time.Time
}

// ObservedPayment records a USDC transfer the scanner found on-chain. It is
// stored once per transaction signature and looked up by the memo it
// carried.
type ObservedPayment struct {
	Memo       string
	Signature  string
	Amount     string
	Payer      string
	Slot       uint64
	ObservedAt time.Time
}

// Pool is the slice of pgxpool.Pool's surface the store actually calls.
// Narrowing it to an interface, rather than holding *pgxpool.Pool
// directly, is what lets store_test.go swap in pgxmock's mock pool —
// the same shape VidIsWandering-secure-payment-gateway's postgres
// repositories use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed persistence layer for merchants and
// observed payments, grounded on the teacher pack's pgxpool-based
// repositories (VidIsWandering-secure-payment-gateway's
// internal/adapter/storage/postgres package): raw SQL over pgx.Pool, no
// ORM, pgx.ErrNoRows mapped to a package-level sentinel.
type Store struct {
	pool Pool
	log  zerolog.Logger
}

// NewStore constructs a Store around an already-connected pool.
func NewStore(pool Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// NewPool opens a pgxpool.Pool against dsn and verifies connectivity.
func NewPool(ctx context.Context, dsn string, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("verify service database pool established")
	return pool, nil
}

// HashAPIKey returns the SHA-256 hex digest of a bearer key. Merchant
// rows only ever store this digest, never the plaintext key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateMerchant inserts a new merchant row and returns its generated ID.
func (s *Store) CreateMerchant(ctx context.Context, apiKeyHash, walletAddress, network, minPayment string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO merchants (id, api_key_hash, wallet_address, network, min_payment, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, apiKeyHash, walletAddress, network, minPayment, time.Now(),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetMerchantByAPIKeyHash looks up a merchant by the hash of its bearer
// key.
func (s *Store) GetMerchantByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Merchant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, api_key_hash, wallet_address, network, min_payment, created_at
		 FROM merchants WHERE api_key_hash = $1`, apiKeyHash)

	var m Merchant
	if err := row.Scan(&m.ID, &m.APIKeyHash, &m.WalletAddress, &m.Network, &m.MinPayment, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMerchantWallets returns every merchant's wallet address and network,
// for the scanner to poll.
func (s *Store) ListMerchantWallets(ctx context.Context) ([]Merchant, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, wallet_address, network, min_payment FROM merchants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []Merchant
	for rows.Next() {
		var m Merchant
		if err := rows.Scan(&m.ID, &m.WalletAddress, &m.Network, &m.MinPayment); err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// RecordPayment inserts an observed payment keyed by its transaction
// signature; a signature already recorded is left unchanged, so
// re-scanning the same block range is idempotent.
func (s *Store) RecordPayment(ctx context.Context, p ObservedPayment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO observed_payments (signature, memo, amount, payer, slot, observed_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (signature) DO NOTHING`,
		p.Signature, p.Memo, p.Amount, p.Payer, p.Slot, p.ObservedAt,
	)
	return err
}

// MemoPaid reports whether memo has at least one observed payment with
// amount >= minPayment. Amounts are compared as numeric strings cast to
// numeric in SQL, matching the decimal-string shape used throughout the
// gate's payment contract.
func (s *Store) MemoPaid(ctx context.Context, memo, minPayment string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM observed_payments
		 WHERE memo = $1 AND amount::numeric >= $2::numeric`,
		memo, minPayment,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
