package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humansinstitute/bush-starter/internal/nwc"
)

const (
	testPubkey  = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	otherPubkey = "c889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	testSecret  = "71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c"
)

func uriFor(pubkey string) string {
	return "nostr+walletconnect://" + pubkey + "?relay=wss%3A%2F%2Fr.io&secret=" + testSecret
}

// stubClient counts Close calls; every wallet op fails loudly since these
// tests only exercise lifecycle.
type stubClient struct {
	closed    atomic.Int32
	closeHook func()
}

func (c *stubClient) GetBalance(context.Context) (*nwc.GetBalanceResult, error) {
	return &nwc.GetBalanceResult{Balance: 1000}, nil
}
func (c *stubClient) MakeInvoice(context.Context, nwc.MakeInvoiceParams) (*nwc.Transaction, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) PayInvoice(context.Context, string) (*nwc.PayInvoiceResult, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) LookupInvoice(context.Context, nwc.LookupInvoiceParams) (*nwc.Transaction, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) ListTransactions(context.Context, nwc.ListTransactionsParams) (*nwc.ListTransactionsResult, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) GetInfo(context.Context) (*nwc.GetInfoResult, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) Close() error {
	if c.closeHook != nil {
		c.closeHook()
	}
	c.closed.Add(1)
	return nil
}

type stubFactory struct {
	built   []*stubClient
	failErr error
}

func (f *stubFactory) build(conn *nwc.Connection) (WalletClient, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	c := &stubClient{}
	f.built = append(f.built, c)
	return c, nil
}

func newTestManager(factory ClientFactory, ttl time.Duration) *Manager {
	return NewManager(factory, ttl, zerolog.Nop())
}

func TestClientRequiresConfiguration(t *testing.T) {
	m := newTestManager((&stubFactory{}).build, 0)
	defer m.Close()

	_, err := m.Client("s1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientIsLazyAndReused(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	assert.Empty(t, factory.built, "configure alone must not build a client")

	first, err := m.Client("s1")
	require.NoError(t, err)
	second, err := m.Client("s1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, factory.built, 1)
}

func TestConfigureRejectsBadURI(t *testing.T) {
	m := newTestManager((&stubFactory{}).build, 0)
	defer m.Close()

	_, err := m.Configure("s1", "https://not-a-wallet")
	assert.ErrorIs(t, err, nwc.ErrNotWalletConnectURI)
}

func TestReconfigureTearsDownOldClient(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	_, err = m.Configure("s1", uriFor(otherPubkey))
	require.NoError(t, err)

	require.Len(t, factory.built, 1)
	assert.Equal(t, int32(1), factory.built[0].closed.Load(), "old client must be closed")

	// Next use builds a client for the new configuration.
	_, err = m.Client("s1")
	require.NoError(t, err)
	assert.Len(t, factory.built, 2)
	assert.Equal(t, otherPubkey, m.Status("s1").WalletPubkey)
}

func TestReconfigureClosesOldClientBeforeSwap(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	// Close runs inside Configure's critical section, so the connection
	// it observes is the one installed at teardown time.
	e := m.entry("s1")
	var pubkeyAtClose string
	factory.built[0].closeHook = func() { pubkeyAtClose = e.conn.WalletPubkey }

	_, err = m.Configure("s1", uriFor(otherPubkey))
	require.NoError(t, err)

	assert.Equal(t, testPubkey, pubkeyAtClose, "old client must be closed before the new connection is installed")
}

func TestDisconnectClosesAndForgetsSession(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	m.Disconnect("s1")
	assert.Equal(t, int32(1), factory.built[0].closed.Load())
	assert.Equal(t, 0, m.Len())

	_, err = m.Client("s1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	m.Disconnect("s1")
	m.Disconnect("s1")
	m.Disconnect("never-existed")
	assert.Equal(t, int32(1), factory.built[0].closed.Load())
}

func TestFactoryErrorLeavesSessionConfigured(t *testing.T) {
	factory := &stubFactory{failErr: errors.New("relay down")}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)

	_, err = m.Client("s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)

	// A later attempt succeeds once the factory recovers.
	factory.failErr = nil
	_, err = m.Client("s1")
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	assert.Equal(t, Status{}, m.Status("s1"))

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	status := m.Status("s1")
	assert.True(t, status.Configured)
	assert.False(t, status.Connected)
	assert.Equal(t, testPubkey, status.WalletPubkey)

	_, err = m.Client("s1")
	require.NoError(t, err)
	assert.True(t, m.Status("s1").Connected)
}

func TestSessionsAreIsolated(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Configure("s2", uriFor(otherPubkey))
	require.NoError(t, err)

	c1, err := m.Client("s1")
	require.NoError(t, err)
	c2, err := m.Client("s2")
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)
	assert.Equal(t, 2, m.Len())
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, time.Hour)
	defer m.Close()

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	// Drive the sweep directly instead of waiting on the ticker.
	m.evictIdle(time.Now().Add(time.Minute))

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int32(1), factory.built[0].closed.Load())
}

func TestCloseTearsDownEverything(t *testing.T) {
	factory := &stubFactory{}
	m := newTestManager(factory.build, 0)

	_, err := m.Configure("s1", uriFor(testPubkey))
	require.NoError(t, err)
	_, err = m.Client("s1")
	require.NoError(t, err)

	m.Close()
	m.Close() // safe to repeat
	assert.Equal(t, int32(1), factory.built[0].closed.Load())
	assert.Equal(t, 0, m.Len())
}
