package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/rs/zerolog"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("nwc client is closed")

const defaultTimeout = 30 * time.Second

// Client talks NIP-47 to a single remote wallet service. The relay
// connection is dialed lazily on the first request and reused afterwards.
// Requests are single-flight: one round trip at a time per client.
type Client struct {
	conn         *Connection
	clientPubkey string
	shared       []byte
	timeout      time.Duration
	log          zerolog.Logger

	mu     sync.Mutex
	relay  *nostr.Relay
	closed bool
}

// Option tweaks client construction.
type Option func(*Client)

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client for the given parsed connection. The NIP-04 shared
// secret is derived once here; signing and relay transport are handled by
// the go-nostr SDK per request.
func New(conn *Connection, opts ...Option) (*Client, error) {
	pub, err := nostr.GetPublicKey(conn.Secret)
	if err != nil {
		return nil, fmt.Errorf("deriving client pubkey: %w", err)
	}
	shared, err := nip04.ComputeSharedSecret(conn.WalletPubkey, conn.Secret)
	if err != nil {
		return nil, fmt.Errorf("computing shared secret: %w", err)
	}

	c := &Client{
		conn:         conn,
		clientPubkey: pub,
		shared:       shared,
		timeout:      defaultTimeout,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WalletPubkey returns the remote wallet service's public key.
func (c *Client) WalletPubkey() string { return c.conn.WalletPubkey }

// ClientPubkey returns the pubkey requests are signed with.
func (c *Client) ClientPubkey() string { return c.clientPubkey }

// RelayURL returns the configured relay.
func (c *Client) RelayURL() string { return c.conn.RelayURL }

// GetBalance fetches the wallet balance.
func (c *Client) GetBalance(ctx context.Context) (*GetBalanceResult, error) {
	var res GetBalanceResult
	if err := c.roundTrip(ctx, "get_balance", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MakeInvoice asks the wallet service to create a BOLT11 invoice.
func (c *Client) MakeInvoice(ctx context.Context, params MakeInvoiceParams) (*Transaction, error) {
	var res Transaction
	if err := c.roundTrip(ctx, "make_invoice", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PayInvoice asks the wallet service to pay a BOLT11 invoice.
func (c *Client) PayInvoice(ctx context.Context, invoice string) (*PayInvoiceResult, error) {
	var res PayInvoiceResult
	if err := c.roundTrip(ctx, "pay_invoice", PayInvoiceParams{Invoice: invoice}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LookupInvoice fetches the state of a single invoice.
func (c *Client) LookupInvoice(ctx context.Context, params LookupInvoiceParams) (*Transaction, error) {
	var res Transaction
	if err := c.roundTrip(ctx, "lookup_invoice", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTransactions pages through the wallet's payment history.
func (c *Client) ListTransactions(ctx context.Context, params ListTransactionsParams) (*ListTransactionsResult, error) {
	var res ListTransactionsResult
	if err := c.roundTrip(ctx, "list_transactions", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetInfo describes the remote wallet service.
func (c *Client) GetInfo(ctx context.Context) (*GetInfoResult, error) {
	var res GetInfoResult
	if err := c.roundTrip(ctx, "get_info", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close tears down the relay connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.relay != nil {
		err := c.relay.Close()
		c.relay = nil
		return err
	}
	return nil
}

// ensureRelay dials the relay if there is no live connection yet.
// Caller must hold c.mu.
func (c *Client) ensureRelay(ctx context.Context) (*nostr.Relay, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.relay != nil {
		return c.relay, nil
	}
	relay, err := nostr.RelayConnect(ctx, c.conn.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to relay %s: %w", c.conn.RelayURL, err)
	}
	c.log.Debug().Str("relay", c.conn.RelayURL).Msg("relay connected")
	c.relay = relay
	return relay, nil
}

// roundTrip publishes one kind-23194 request and waits for the matching
// kind-23195 response. Correlation is by the request event id carried in
// the response's "e" tag; the subscription is opened before publishing so
// the response cannot slip past.
func (c *Client) roundTrip(ctx context.Context, method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	relay, err := c.ensureRelay(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(walletRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	content, err := nip04.Encrypt(string(body), c.shared)
	if err != nil {
		return fmt.Errorf("encrypting %s request: %w", method, err)
	}

	ev := nostr.Event{
		PubKey:    c.clientPubkey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindNWCWalletRequest,
		Tags:      nostr.Tags{{"p", c.conn.WalletPubkey}},
		Content:   content,
	}
	if err := ev.Sign(c.conn.Secret); err != nil {
		return fmt.Errorf("signing %s request: %w", method, err)
	}

	since := nostr.Now()
	sub, err := relay.Subscribe(ctx, nostr.Filters{{
		Kinds:   []int{nostr.KindNWCWalletResponse},
		Authors: []string{c.conn.WalletPubkey},
		Tags:    nostr.TagMap{"e": []string{ev.ID}},
		Since:   &since,
	}})
	if err != nil {
		c.dropRelay()
		return fmt.Errorf("subscribing for %s response: %w", method, err)
	}
	defer sub.Unsub()

	if err := relay.Publish(ctx, ev); err != nil {
		c.dropRelay()
		return fmt.Errorf("publishing %s request: %w", method, err)
	}
	c.log.Debug().Str("method", method).Str("event", ev.ID).Msg("request published")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s response: %w", method, ctx.Err())
		case resp, ok := <-sub.Events:
			if !ok {
				c.dropRelay()
				return fmt.Errorf("relay dropped while waiting for %s response", method)
			}
			if resp == nil {
				continue
			}
			return c.decodeResponse(method, resp, result)
		}
	}
}

func (c *Client) decodeResponse(method string, ev *nostr.Event, result interface{}) error {
	plain, err := nip04.Decrypt(ev.Content, c.shared)
	if err != nil {
		return fmt.Errorf("decrypting %s response: %w", method, err)
	}
	var resp walletResponse
	if err := json.Unmarshal([]byte(plain), &resp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// dropRelay discards a connection that misbehaved so the next request
// redials. Caller must hold c.mu.
func (c *Client) dropRelay() {
	if c.relay != nil {
		c.relay.Close()
		c.relay = nil
	}
}
