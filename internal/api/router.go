// Package api is the HTTP surface of the gateway: a gorilla/mux router,
// JSON handlers for the wallet operations, and the embedded web UI.
package api

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/humansinstitute/bush-starter/internal/metrics"
	sessionmgr "github.com/humansinstitute/bush-starter/internal/session"
	"github.com/humansinstitute/bush-starter/internal/wallet"
)

// Options configures a Server.
type Options struct {
	Wallet   *wallet.Service
	Sessions *sessionmgr.Manager
	Metrics  *metrics.Metrics
	Log      zerolog.Logger

	// CookieSecret signs session cookies. Required.
	CookieSecret []byte
	// Password, when set, gates the API behind /api/login.
	Password string
	// DefaultConnection optionally pre-configures fresh sessions with an
	// operator-supplied NWC connection string.
	DefaultConnection string
	// Static is the embedded web UI; nil disables it.
	Static fs.FS

	RatePerSecond int
	RateBurst     int
}

// Server holds the gateway's HTTP state.
type Server struct {
	svc               *wallet.Service
	sessions          *sessionmgr.Manager
	metrics           *metrics.Metrics
	log               zerolog.Logger
	cookies           sessions.Store
	passwordHash      []byte
	defaultConnection string
	limiter           *rateLimiter
	static            fs.FS
}

// NewServer builds the HTTP server state. The gateway password, when
// configured, is held only as a bcrypt hash.
func NewServer(opts Options) (*Server, error) {
	cookieStore := sessions.NewCookieStore(opts.CookieSecret)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	var hash []byte
	if opts.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 25
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 50
	}

	return &Server{
		svc:               opts.Wallet,
		sessions:          opts.Sessions,
		metrics:           opts.Metrics,
		log:               opts.Log,
		cookies:           cookieStore,
		passwordHash:      hash,
		defaultConnection: opts.DefaultConnection,
		limiter:           newRateLimiter(perSecond, burst),
		static:            opts.Static,
	}, nil
}

// Router assembles all routes and middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, s.metricsMiddleware, s.rateLimitMiddleware, s.authMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/time", s.handleTime).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleSessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/session/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/session/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	api.HandleFunc("/invoice", s.handleCreateInvoice).Methods(http.MethodPost)
	api.HandleFunc("/pay", s.handlePay).Methods(http.MethodPost)
	api.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/mint", s.handleMint).Methods(http.MethodPost)
	api.HandleFunc("/mint/quote", s.handleMintQuote).Methods(http.MethodPost)
	api.HandleFunc("/mint/claim", s.handleMintClaim).Methods(http.MethodPost)
	api.HandleFunc("/ecash/balance", s.handleEcashBalance).Methods(http.MethodGet)
	api.HandleFunc("/ecash/send", s.handleEcashSend).Methods(http.MethodPost)
	api.HandleFunc("/ecash/receive", s.handleEcashReceive).Methods(http.MethodPost)
	api.HandleFunc("/qr", s.handleQR).Methods(http.MethodGet)

	if s.static != nil {
		r.PathPrefix("/").Handler(http.FileServer(http.FS(s.static))).Methods(http.MethodGet)
	}
	return r
}
