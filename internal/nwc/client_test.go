package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWallet is an in-process relay with a wallet service behind it: it
// speaks just enough of the relay protocol for one client and answers
// NIP-47 requests with the configured handler.
type fakeWallet struct {
	t      *testing.T
	secret string
	pubkey string
	handle func(method string, params json.RawMessage) (interface{}, *RPCError)
	// silent drops requests on the floor instead of answering.
	silent bool

	server   *httptest.Server
	upgrader websocket.Upgrader
}

func newFakeWallet(t *testing.T, handle func(method string, params json.RawMessage) (interface{}, *RPCError)) *fakeWallet {
	secret := nostr.GeneratePrivateKey()
	pubkey, err := nostr.GetPublicKey(secret)
	require.NoError(t, err)

	fw := &fakeWallet{t: t, secret: secret, pubkey: pubkey, handle: handle}
	fw.server = httptest.NewServer(http.HandlerFunc(fw.serve))
	t.Cleanup(fw.server.Close)
	return fw
}

func (fw *fakeWallet) relayURL() string {
	return "ws" + strings.TrimPrefix(fw.server.URL, "http")
}

func (fw *fakeWallet) connectionString() *Connection {
	clientSecret := nostr.GeneratePrivateKey()
	return &Connection{
		WalletPubkey: fw.pubkey,
		RelayURL:     fw.relayURL(),
		Secret:       clientSecret,
	}
}

func (fw *fakeWallet) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := fw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var mu sync.Mutex // one writer at a time
	send := func(frame interface{}) {
		mu.Lock()
		defer mu.Unlock()
		data, err := json.Marshal(frame)
		require.NoError(fw.t, err)
		ws.WriteMessage(websocket.TextMessage, data)
	}

	subID := ""
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}

		switch label {
		case "REQ":
			json.Unmarshal(frame[1], &subID)
			send([]interface{}{"EOSE", subID})
		case "CLOSE":
			// client gave up on the subscription
		case "EVENT":
			var ev nostr.Event
			if err := json.Unmarshal(frame[1], &ev); err != nil {
				continue
			}
			send([]interface{}{"OK", ev.ID, true, ""})
			if fw.silent {
				continue
			}
			send([]interface{}{"EVENT", subID, fw.respond(&ev)})
		}
	}
}

// respond decrypts a request event and builds the signed response event.
func (fw *fakeWallet) respond(req *nostr.Event) *nostr.Event {
	shared, err := nip04.ComputeSharedSecret(req.PubKey, fw.secret)
	require.NoError(fw.t, err)
	plain, err := nip04.Decrypt(req.Content, shared)
	require.NoError(fw.t, err)

	var request struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(fw.t, json.Unmarshal([]byte(plain), &request))

	result, rpcErr := fw.handle(request.Method, request.Params)
	body, err := json.Marshal(map[string]interface{}{
		"result_type": request.Method,
		"error":       rpcErr,
		"result":      result,
	})
	require.NoError(fw.t, err)

	content, err := nip04.Encrypt(string(body), shared)
	require.NoError(fw.t, err)

	resp := &nostr.Event{
		PubKey:    fw.pubkey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindNWCWalletResponse,
		Tags:      nostr.Tags{{"p", req.PubKey}, {"e", req.ID}},
		Content:   content,
	}
	require.NoError(fw.t, resp.Sign(fw.secret))
	return resp
}

func TestGetBalance(t *testing.T) {
	fw := newFakeWallet(t, func(method string, _ json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "get_balance", method)
		return GetBalanceResult{Balance: 21_000_000}, nil
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	defer client.Close()

	res, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(21_000_000), res.Balance)
}

func TestMakeInvoice(t *testing.T) {
	fw := newFakeWallet(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "make_invoice", method)
		var p MakeInvoiceParams
		require.NoError(t, json.Unmarshal(params, &p))
		require.Equal(t, int64(5000), p.Amount)
		require.Equal(t, "coffee", p.Description)
		return Transaction{
			Type:        "incoming",
			Invoice:     "lnbc50n1fake",
			PaymentHash: "deadbeef",
			Amount:      p.Amount,
		}, nil
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	defer client.Close()

	tx, err := client.MakeInvoice(context.Background(), MakeInvoiceParams{Amount: 5000, Description: "coffee"})
	require.NoError(t, err)
	assert.Equal(t, "lnbc50n1fake", tx.Invoice)
	assert.Equal(t, "deadbeef", tx.PaymentHash)
}

func TestLookupInvoice(t *testing.T) {
	fw := newFakeWallet(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "lookup_invoice", method)
		var p LookupInvoiceParams
		require.NoError(t, json.Unmarshal(params, &p))
		require.Equal(t, "deadbeef", p.PaymentHash)
		return Transaction{
			Type:        "incoming",
			PaymentHash: p.PaymentHash,
			Amount:      5000,
			SettledAt:   1700000000,
		}, nil
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	defer client.Close()

	tx, err := client.LookupInvoice(context.Background(), LookupInvoiceParams{PaymentHash: "deadbeef"})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", tx.PaymentHash)
	assert.Equal(t, int64(1700000000), tx.SettledAt)
}

func TestPayInvoiceWalletError(t *testing.T) {
	fw := newFakeWallet(t, func(method string, _ json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: CodeInsufficientBalance, Message: "not enough funds"}
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.PayInvoice(context.Background(), "lnbc1fake")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInsufficientBalance, rpcErr.Code)
}

func TestRoundTripTimeout(t *testing.T) {
	fw := newFakeWallet(t, nil)
	fw.silent = true

	client, err := New(fw.connectionString(), WithTimeout(300*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetBalance(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSequentialRequestsReuseConnection(t *testing.T) {
	var calls int
	fw := newFakeWallet(t, func(method string, _ json.RawMessage) (interface{}, *RPCError) {
		calls++
		return GetBalanceResult{Balance: int64(calls)}, nil
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	defer client.Close()

	for i := 1; i <= 3; i++ {
		res, err := client.GetBalance(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.Balance)
	}
}

func TestClosedClientRejectsRequests(t *testing.T) {
	fw := newFakeWallet(t, func(string, json.RawMessage) (interface{}, *RPCError) {
		return GetBalanceResult{}, nil
	})

	client, err := New(fw.connectionString())
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close()) // idempotent

	_, err = client.GetBalance(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsBadSecret(t *testing.T) {
	_, err := New(&Connection{
		WalletPubkey: testPubkey,
		RelayURL:     "wss://relay.example.com",
		Secret:       "not-a-key",
	})
	require.Error(t, err)
}

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: CodePaymentFailed, Message: "no route"}
	assert.True(t, errors.As(error(err), new(*RPCError)))
	assert.Contains(t, err.Error(), CodePaymentFailed)
	assert.Contains(t, err.Error(), "no route")
}
