package wallet

import (
	"errors"
	"fmt"

	"github.com/elnosh/gonuts/cashu"
	gonuts "github.com/elnosh/gonuts/wallet"
)

// ErrEcashDisabled is returned when no Cashu mint is configured.
var ErrEcashDisabled = errors.New("ecash support is not configured")

// Ecash is the slice of the Cashu wallet the gateway uses. The gonuts
// library owns all of the minting cryptography; this interface exists so
// handler tests can stub it.
type Ecash interface {
	// RequestMint asks the mint for a quote: a BOLT11 invoice that, once
	// paid, entitles the wallet to mint amount sats of ecash.
	RequestMint(amount uint64) (quoteID, invoice string, err error)
	// MintTokens claims a paid quote and returns a serialized cashu token.
	MintTokens(quoteID string) (token string, amount uint64, err error)
	// Balance reports the ecash balance in sats.
	Balance() uint64
	// Send withdraws amount sats into a serialized cashu token.
	Send(amount uint64) (token string, err error)
	// Receive redeems a serialized cashu token, returning the amount added.
	Receive(token string) (uint64, error)
	// MintURL reports the mint this wallet is bound to.
	MintURL() string
}

type gonutsEcash struct {
	w       *gonuts.Wallet
	mintURL string
}

// NewEcash opens (or creates) the gateway's Cashu wallet at dataDir,
// bound to the given mint.
func NewEcash(dataDir, mintURL string) (Ecash, error) {
	w, err := gonuts.LoadWallet(gonuts.Config{
		WalletPath:     dataDir,
		CurrentMintURL: mintURL,
	})
	if err != nil {
		return nil, fmt.Errorf("loading cashu wallet: %w", err)
	}
	return &gonutsEcash{w: w, mintURL: mintURL}, nil
}

func (e *gonutsEcash) RequestMint(amount uint64) (string, string, error) {
	quote, err := e.w.RequestMint(amount)
	if err != nil {
		return "", "", fmt.Errorf("requesting mint quote: %w", err)
	}
	return quote.Quote, quote.Request, nil
}

// MintTokens claims the proofs for a paid quote and immediately
// withdraws them into a token, so the caller gets the minted amount in
// serialized form.
func (e *gonutsEcash) MintTokens(quoteID string) (string, uint64, error) {
	amount, err := e.w.MintTokens(quoteID)
	if err != nil {
		return "", 0, fmt.Errorf("minting tokens: %w", err)
	}
	token, err := e.withdraw(amount)
	if err != nil {
		return "", 0, err
	}
	return token, amount, nil
}

func (e *gonutsEcash) Balance() uint64 {
	return e.w.GetBalance()
}

func (e *gonutsEcash) Send(amount uint64) (string, error) {
	return e.withdraw(amount)
}

func (e *gonutsEcash) withdraw(amount uint64) (string, error) {
	proofs, err := e.w.Send(amount, e.mintURL, true)
	if err != nil {
		return "", fmt.Errorf("sending ecash: %w", err)
	}
	token, err := cashu.NewTokenV4(proofs, e.mintURL, cashu.Sat, false)
	if err != nil {
		return "", fmt.Errorf("building cashu token: %w", err)
	}
	serialized, err := token.Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing cashu token: %w", err)
	}
	return serialized, nil
}

func (e *gonutsEcash) Receive(tokenstr string) (uint64, error) {
	token, err := cashu.DecodeToken(tokenstr)
	if err != nil {
		return 0, fmt.Errorf("decoding cashu token: %w", err)
	}
	amount, err := e.w.Receive(token, false)
	if err != nil {
		return 0, fmt.Errorf("receiving ecash: %w", err)
	}
	return amount, nil
}

func (e *gonutsEcash) MintURL() string { return e.mintURL }
