package verifyservice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// PaymentsObservedSubject is the NATS subject the scanner publishes to and
// the store-apply subscriber listens on. Scan and persist run decoupled so
// a slow database write never stalls the scan loop, mirroring the
// temporal-worker/NATS split in the teacher pack's brojonat-forohtoo
// service.
const PaymentsObservedSubject = "payments.observed"

// MemoProgramID is the SPL memo program; scanned transactions carrying an
// instruction addressed to it are inspected for a payment memo.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// Scanner polls each known merchant wallet for new transactions and
// publishes any memo-bearing transfer it finds. Grounded directly on
// brojonat-forohtoo's service/solana.Client.GetTransactionsSince: same
// GetSignaturesForAddress-then-GetTransaction shape, generalized from a
// single wallet to the verify service's full merchant list.
type Scanner struct {
	rpcClient *rpc.Client
	nc        *nats.Conn
	store     *Store
	log       zerolog.Logger
	interval  time.Duration

	lastSignature map[string]solana.Signature
}

// NewScanner constructs a Scanner. rpcEndpoint is a Solana JSON-RPC URL
// (e.g. a devnet or mainnet-beta cluster endpoint).
func NewScanner(rpcEndpoint string, nc *nats.Conn, store *Store, log zerolog.Logger) *Scanner {
	return &Scanner{
		rpcClient:     rpc.New(rpcEndpoint),
		nc:            nc,
		store:         store,
		log:           log,
		interval:      10 * time.Second,
		lastSignature: make(map[string]solana.Signature),
	}
}

// Run polls every s.interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	merchants, err := s.store.ListMerchantWallets(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing merchant wallets")
		return
	}

	for _, m := range merchants {
		wallet, err := solana.PublicKeyFromBase58(m.WalletAddress)
		if err != nil {
			s.log.Warn().Err(err).Str("wallet", m.WalletAddress).Msg("invalid merchant wallet address")
			continue
		}
		s.scanWallet(ctx, wallet)
	}
}

func (s *Scanner) scanWallet(ctx context.Context, wallet solana.PublicKey) {
	limit := 50
	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
	if last, ok := s.lastSignature[wallet.String()]; ok {
		opts.Until = last
	}

	sigs, err := s.rpcClient.GetSignaturesForAddressWithOpts(ctx, wallet, opts)
	if err != nil {
		s.log.Error().Err(err).Str("wallet", wallet.String()).Msg("fetching signatures")
		return
	}
	if len(sigs) == 0 {
		return
	}
	s.lastSignature[wallet.String()] = sigs[0].Signature

	version := uint64(0)
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		txn, err := s.rpcClient.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &version,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("signature", sig.Signature.String()).Msg("fetching transaction")
			continue
		}
		payment, ok := s.extractPayment(sig, txn)
		if !ok {
			continue
		}
		s.publish(payment)
	}
}

// extractPayment inspects a transaction's instructions for a memo
// instruction and a token transfer, returning an ObservedPayment when
// both are present. Amount/source decoding follows the same
// little-endian SPL-token-instruction layout as the teacher pack's
// solana/parser.go.
func (s *Scanner) extractPayment(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (ObservedPayment, bool) {
	if result == nil {
		return ObservedPayment{}, false
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		s.log.Warn().Err(err).Msg("decoding transaction")
		return ObservedPayment{}, false
	}

	var memo string
	var amount uint64
	accountKeys := tx.Message.AccountKeys
	for _, instr := range tx.Message.Instructions {
		programID := accountKeys[instr.ProgramIDIndex]
		if programID.Equals(MemoProgramID) {
			memo = string(instr.Data)
		}
		if len(instr.Data) >= 9 && instr.Data[0] == 3 {
			amount = binary.LittleEndian.Uint64(instr.Data[1:9])
		}
	}

	if memo == "" || amount == 0 {
		return ObservedPayment{}, false
	}

	blockTime := time.Now()
	if sig.BlockTime != nil {
		blockTime = sig.BlockTime.Time()
	}

	// USDC has 6 decimals; Amount holds the decimal amount MemoPaid compares.
	return ObservedPayment{
		Memo:       memo,
		Signature:  sig.Signature.String(),
		Amount:     fmt.Sprintf("%d.%06d", amount/1_000_000, amount%1_000_000),
		Slot:       sig.Slot,
		ObservedAt: blockTime,
	}, true
}

func (s *Scanner) publish(p ObservedPayment) {
	body, err := json.Marshal(p)
	if err != nil {
		s.log.Error().Err(err).Msg("marshaling observed payment")
		return
	}
	if err := s.nc.Publish(PaymentsObservedSubject, body); err != nil {
		s.log.Error().Err(err).Msg("publishing observed payment")
	}
}

// RunStoreApplier subscribes to PaymentsObservedSubject and persists every
// observed payment, decoupled from the scan loop as described on
// PaymentsObservedSubject.
func RunStoreApplier(ctx context.Context, nc *nats.Conn, store *Store, log zerolog.Logger) error {
	sub, err := nc.Subscribe(PaymentsObservedSubject, func(msg *nats.Msg) {
		var p ObservedPayment
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			log.Error().Err(err).Msg("unmarshaling observed payment")
			return
		}
		if err := store.RecordPayment(context.Background(), p); err != nil {
			log.Error().Err(err).Str("signature", p.Signature).Msg("recording observed payment")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", PaymentsObservedSubject, err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}
