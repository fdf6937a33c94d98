package nwc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Connection holds the pieces of a parsed Nostr Wallet Connect URI.
type Connection struct {
	// WalletPubkey is the hex public key of the remote wallet service.
	WalletPubkey string
	// RelayURL is the websocket URL of the relay both sides meet on.
	RelayURL string
	// Secret is the hex private key this client signs requests with.
	Secret string
	// Lud16 is an optional lightning address advertised by the wallet.
	Lud16 string
}

var (
	ErrNotWalletConnectURI = errors.New("not a nostr+walletconnect URI")
	ErrMissingRelay        = errors.New("connection URI has no relay parameter")
	ErrMissingSecret       = errors.New("connection URI has no secret parameter")
)

// ParseConnectionString parses a nostr+walletconnect:// URI as handed out
// by wallet services. The older nostrwalletconnect:// spelling is accepted
// too.
func ParseConnectionString(raw string) (*Connection, error) {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing connection URI: %w", err)
	}
	if u.Scheme != "nostr+walletconnect" && u.Scheme != "nostrwalletconnect" {
		return nil, ErrNotWalletConnectURI
	}

	// The wallet pubkey is the URI host, but some generators emit it as an
	// opaque part (no //), in which case it lands in Opaque.
	pubkey := u.Host
	if pubkey == "" {
		pubkey = u.Opaque
	}
	if err := validPubkey(pubkey); err != nil {
		return nil, err
	}

	q := u.Query()

	relay := q.Get("relay")
	if relay == "" {
		return nil, ErrMissingRelay
	}
	if !strings.HasPrefix(relay, "ws://") && !strings.HasPrefix(relay, "wss://") {
		return nil, fmt.Errorf("relay %q is not a websocket URL", relay)
	}

	secret := q.Get("secret")
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if _, err := hex.DecodeString(secret); err != nil || len(secret) != 64 {
		return nil, fmt.Errorf("secret is not a 32-byte hex key")
	}

	return &Connection{
		WalletPubkey: strings.ToLower(pubkey),
		RelayURL:     relay,
		Secret:       strings.ToLower(secret),
		Lud16:        q.Get("lud16"),
	}, nil
}

func validPubkey(s string) error {
	if len(s) != 64 {
		return fmt.Errorf("wallet pubkey must be 32 bytes of hex, got %d chars", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("wallet pubkey is not valid hex: %w", err)
	}
	return nil
}
