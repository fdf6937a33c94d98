package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/humansinstitute/bush-starter/internal/nwc"
	"github.com/humansinstitute/bush-starter/internal/session"
	"github.com/humansinstitute/bush-starter/internal/wallet"
)

// errorBody is the JSON shape every failed request returns.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeMappedError translates domain errors into HTTP statuses: bad input
// is 400, an unconfigured session 409, wallet-service failures 502,
// relay timeouts 504, disabled ecash 503.
func writeMappedError(w http.ResponseWriter, err error) {
	var rpcErr *nwc.RPCError
	switch {
	case errors.Is(err, session.ErrNotConfigured):
		writeError(w, http.StatusConflict, "not_connected", err.Error())
	case errors.Is(err, wallet.ErrEcashDisabled):
		writeError(w, http.StatusServiceUnavailable, "ecash_disabled", err.Error())
	case errors.As(err, &rpcErr):
		writeError(w, http.StatusBadGateway, rpcErr.Code, rpcErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "wallet service did not respond in time")
	case errors.Is(err, nwc.ErrNotWalletConnectURI),
		errors.Is(err, nwc.ErrMissingRelay),
		errors.Is(err, nwc.ErrMissingSecret),
		errors.Is(err, wallet.ErrEmptyInvoice),
		errors.Is(err, wallet.ErrInvalidInvoice):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
