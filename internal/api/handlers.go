package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/humansinstitute/bush-starter/internal/session"
)

// handleTime reports server time; the UI uses it as a liveness probe.
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogin checks the gateway password and marks the cookie session
// authenticated.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if len(s.passwordHash) == 0 {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if !s.checkPassword(body.Password) {
		writeError(w, http.StatusUnauthorized, "bad_password", "wrong password")
		return
	}
	if err := s.setAuthenticated(w, r); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// handleSessionStatus reports whether the caller's session has a wallet
// connection and which wallet it points at.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sid, err := s.sessionID(w, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	status := s.sessions.Status(sid)
	if !status.Configured && s.defaultConnection != "" {
		// The operator default kicks in on first wallet op.
		status.Configured = true
	}
	writeJSON(w, http.StatusOK, status)
}

// handleConnect installs a wallet connection string for the session. Any
// client built for a previous connection is torn down first.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	sid, err := s.sessionID(w, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	var body struct {
		Connection string `json:"connection"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if _, err := s.sessions.Configure(sid, body.Connection); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Status(sid))
}

// handleDisconnect tears down the session's wallet client. Idempotent.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	sid, err := s.sessionID(w, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	s.sessions.Disconnect(sid)
	writeJSON(w, http.StatusOK, session.Status{})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	balance, err := s.svc.Balance(r.Context(), sid)
	s.metrics.ObserveWalletOp("get_balance", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	var body struct {
		AmountSats  int64  `json:"amount_sats"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.AmountSats <= 0 {
		writeError(w, http.StatusBadRequest, "bad_amount", "amount_sats must be positive")
		return
	}
	invoice, err := s.svc.CreateInvoice(r.Context(), sid, body.AmountSats, body.Description)
	s.metrics.ObserveWalletOp("make_invoice", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Invoice string `json:"invoice"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	payment, err := s.svc.PayInvoice(r.Context(), sid, body.Invoice)
	s.metrics.ObserveWalletOp("pay_invoice", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}
	txs, err := s.svc.Transactions(r.Context(), sid, limit)
	s.metrics.ObserveWalletOp("list_transactions", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	info, err := s.svc.Info(r.Context(), sid)
	s.metrics.ObserveWalletOp("get_info", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleMint runs the full mint flow: quote, pay over the session's
// Lightning wallet, claim the tokens.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.walletSession(w, r)
	if !ok {
		return
	}
	var body struct {
		AmountSats uint64 `json:"amount_sats"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.AmountSats == 0 {
		writeError(w, http.StatusBadRequest, "bad_amount", "amount_sats must be positive")
		return
	}
	result, err := s.svc.MintEcash(r.Context(), sid, body.AmountSats)
	s.metrics.ObserveWalletOp("mint_ecash", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMintQuote starts a mint that the caller pays out of band.
func (s *Server) handleMintQuote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountSats uint64 `json:"amount_sats"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.AmountSats == 0 {
		writeError(w, http.StatusBadRequest, "bad_amount", "amount_sats must be positive")
		return
	}
	quote, err := s.svc.RequestMintQuote(body.AmountSats)
	s.metrics.ObserveWalletOp("mint_quote", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quote)
}

func (s *Server) handleMintClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuoteID string `json:"quote_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.QuoteID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing quote_id")
		return
	}
	result, err := s.svc.ClaimMint(body.QuoteID)
	s.metrics.ObserveWalletOp("mint_claim", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEcashBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.EcashBalance()
	s.metrics.ObserveWalletOp("ecash_balance", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"sats": balance})
}

func (s *Server) handleEcashSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountSats uint64 `json:"amount_sats"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.AmountSats == 0 {
		writeError(w, http.StatusBadRequest, "bad_amount", "amount_sats must be positive")
		return
	}
	token, err := s.svc.SendEcash(body.AmountSats)
	s.metrics.ObserveWalletOp("ecash_send", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "amount_sats": body.AmountSats})
}

func (s *Server) handleEcashReceive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	amount, err := s.svc.ReceiveEcash(body.Token)
	s.metrics.ObserveWalletOp("ecash_receive", err)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount_sats": amount})
}

// walletSession resolves the session id and, when the operator configured
// a default connection string, configures fresh sessions with it so the
// UI works with zero setup. Writes the error response itself on failure.
func (s *Server) walletSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid, err := s.sessionID(w, r)
	if err != nil {
		writeMappedError(w, err)
		return "", false
	}
	if s.defaultConnection != "" && !s.sessions.Status(sid).Configured {
		if _, err := s.sessions.Configure(sid, s.defaultConnection); err != nil {
			writeMappedError(w, err)
			return "", false
		}
	}
	return sid, true
}
