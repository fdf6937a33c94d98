// Package wallet exposes the gateway's wallet operations: Lightning ops
// forwarded over NWC through per-session clients, and Cashu ecash ops
// backed by the gateway's mint wallet.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/rs/zerolog"

	"github.com/humansinstitute/bush-starter/internal/nwc"
	"github.com/humansinstitute/bush-starter/internal/session"
)

var (
	// ErrEmptyInvoice is returned when a pay request carries no invoice.
	ErrEmptyInvoice = errors.New("missing bolt11 invoice")
	// ErrInvalidInvoice is returned when a bolt11 fails to decode.
	ErrInvalidInvoice = errors.New("invalid bolt11 invoice")
)

// Service fronts all wallet operations for the HTTP layer.
type Service struct {
	sessions *session.Manager
	ecash    Ecash // nil when no mint is configured
	log      zerolog.Logger
}

// NewService wires the facade. ecash may be nil to disable Cashu ops.
func NewService(sessions *session.Manager, ecash Ecash, log zerolog.Logger) *Service {
	return &Service{sessions: sessions, ecash: ecash, log: log}
}

// Balance is the wallet balance in both units the UI cares about.
type Balance struct {
	Sats  int64 `json:"sats"`
	Msats int64 `json:"msats"`
}

// Invoice is a freshly created BOLT11 invoice.
type Invoice struct {
	Bolt11      string `json:"bolt11"`
	PaymentHash string `json:"payment_hash"`
	AmountSats  int64  `json:"amount_sats"`
	Description string `json:"description,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

// Payment is the outcome of paying a BOLT11 invoice.
type Payment struct {
	Preimage    string `json:"preimage"`
	AmountSats  int64  `json:"amount_sats"`
	FeeSats     int64  `json:"fee_sats"`
	Description string `json:"description,omitempty"`
	PaymentHash string `json:"payment_hash"`
}

// MintResult is a completed ecash mint.
type MintResult struct {
	Token      string `json:"token"`
	AmountSats uint64 `json:"amount_sats"`
	QuoteID    string `json:"quote_id"`
	// Preimage is set when the mint invoice was paid through the
	// session's Lightning wallet.
	Preimage string `json:"preimage,omitempty"`
}

// MintQuote is a pending ecash mint awaiting invoice payment.
type MintQuote struct {
	QuoteID    string `json:"quote_id"`
	Invoice    string `json:"invoice"`
	AmountSats uint64 `json:"amount_sats"`
	MintURL    string `json:"mint_url"`
}

// Balance fetches the session wallet's balance over NWC.
func (s *Service) Balance(ctx context.Context, sessionID string) (*Balance, error) {
	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	res, err := client.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &Balance{Sats: res.Balance / 1000, Msats: res.Balance}, nil
}

// CreateInvoice asks the session wallet for an invoice of amountSats.
func (s *Service) CreateInvoice(ctx context.Context, sessionID string, amountSats int64, description string) (*Invoice, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("invoice amount must be positive, got %d", amountSats)
	}
	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	tx, err := client.MakeInvoice(ctx, nwc.MakeInvoiceParams{
		Amount:      amountSats * 1000,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return &Invoice{
		Bolt11:      tx.Invoice,
		PaymentHash: tx.PaymentHash,
		AmountSats:  tx.Amount / 1000,
		Description: tx.Description,
		ExpiresAt:   tx.ExpiresAt,
	}, nil
}

// PayInvoice decodes then pays a BOLT11 invoice through the session
// wallet. Decoding happens before anything touches the relay so malformed
// input fails fast and the UI can show what it is about to pay.
func (s *Service) PayInvoice(ctx context.Context, sessionID, bolt11 string) (*Payment, error) {
	bolt11 = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(bolt11)), "lightning:"))
	if bolt11 == "" {
		return nil, ErrEmptyInvoice
	}
	decoded, err := decodepay.Decodepay(bolt11)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}

	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	res, err := client.PayInvoice(ctx, bolt11)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("payment_hash", decoded.PaymentHash).Int64("msat", decoded.MSatoshi).Msg("invoice paid")
	return &Payment{
		Preimage:    res.Preimage,
		AmountSats:  decoded.MSatoshi / 1000,
		FeeSats:     res.FeesPaid / 1000,
		Description: decoded.Description,
		PaymentHash: decoded.PaymentHash,
	}, nil
}

// Transactions pages the session wallet's history, newest first.
func (s *Service) Transactions(ctx context.Context, sessionID string, limit int) ([]nwc.Transaction, error) {
	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	res, err := client.ListTransactions(ctx, nwc.ListTransactionsParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

// Info describes the session's remote wallet service.
func (s *Service) Info(ctx context.Context, sessionID string) (*nwc.GetInfoResult, error) {
	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	return client.GetInfo(ctx)
}

// RequestMintQuote starts an ecash mint: the caller pays the returned
// invoice, then claims with ClaimMint.
func (s *Service) RequestMintQuote(amountSats uint64) (*MintQuote, error) {
	if s.ecash == nil {
		return nil, ErrEcashDisabled
	}
	if amountSats == 0 {
		return nil, errors.New("mint amount must be positive")
	}
	quoteID, invoice, err := s.ecash.RequestMint(amountSats)
	if err != nil {
		return nil, err
	}
	return &MintQuote{
		QuoteID:    quoteID,
		Invoice:    invoice,
		AmountSats: amountSats,
		MintURL:    s.ecash.MintURL(),
	}, nil
}

// ClaimMint mints ecash for a quote whose invoice has been paid.
func (s *Service) ClaimMint(quoteID string) (*MintResult, error) {
	if s.ecash == nil {
		return nil, ErrEcashDisabled
	}
	if quoteID == "" {
		return nil, errors.New("missing quote id")
	}
	token, amount, err := s.ecash.MintTokens(quoteID)
	if err != nil {
		return nil, err
	}
	return &MintResult{Token: token, AmountSats: amount, QuoteID: quoteID}, nil
}

// MintEcash runs the whole mint flow in one call: request a quote, pay
// its invoice through the session's Lightning wallet, then claim the
// tokens.
func (s *Service) MintEcash(ctx context.Context, sessionID string, amountSats uint64) (*MintResult, error) {
	quote, err := s.RequestMintQuote(amountSats)
	if err != nil {
		return nil, err
	}
	client, err := s.sessions.Client(sessionID)
	if err != nil {
		return nil, err
	}
	paid, err := client.PayInvoice(ctx, quote.Invoice)
	if err != nil {
		return nil, fmt.Errorf("paying mint invoice: %w", err)
	}
	result, err := s.ClaimMint(quote.QuoteID)
	if err != nil {
		// The invoice is paid but the claim failed; the quote id is the
		// only handle left for retrying.
		return nil, fmt.Errorf("mint invoice paid but claim failed (quote %s): %w", quote.QuoteID, err)
	}
	result.Preimage = paid.Preimage
	s.log.Info().Uint64("sats", amountSats).Str("quote", quote.QuoteID).Msg("ecash minted")
	return result, nil
}

// EcashBalance reports the gateway's ecash balance in sats.
func (s *Service) EcashBalance() (uint64, error) {
	if s.ecash == nil {
		return 0, ErrEcashDisabled
	}
	return s.ecash.Balance(), nil
}

// SendEcash withdraws amountSats into a cashu token string.
func (s *Service) SendEcash(amountSats uint64) (string, error) {
	if s.ecash == nil {
		return "", ErrEcashDisabled
	}
	if amountSats == 0 {
		return "", errors.New("send amount must be positive")
	}
	return s.ecash.Send(amountSats)
}

// ReceiveEcash redeems a cashu token, returning the sats added.
func (s *Service) ReceiveEcash(token string) (uint64, error) {
	if s.ecash == nil {
		return 0, ErrEcashDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, errors.New("missing cashu token")
	}
	return s.ecash.Receive(token)
}

// EcashEnabled reports whether a mint is configured.
func (s *Service) EcashEnabled() bool { return s.ecash != nil }
