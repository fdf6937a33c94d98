package nwc

import (
	"encoding/json"
	"fmt"
)

// NIP-47 request/response payloads. Amounts are millisatoshis throughout,
// matching what wallet services speak on the wire.

type walletRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type walletResponse struct {
	ResultType string          `json:"result_type"`
	Error      *RPCError       `json:"error"`
	Result     json.RawMessage `json:"result"`
}

// RPCError is the error object a wallet service returns inside a NIP-47
// response event.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet service error %s: %s", e.Code, e.Message)
}

// Error codes defined by NIP-47.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL"
	CodeUnauthorized        = "UNAUTHORIZED"
)

// GetBalanceResult carries the wallet balance in msats.
type GetBalanceResult struct {
	Balance int64 `json:"balance"`
}

// MakeInvoiceParams asks the wallet service to create a BOLT11 invoice.
type MakeInvoiceParams struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	Expiry      int64  `json:"expiry,omitempty"`
}

// PayInvoiceParams asks the wallet service to pay a BOLT11 invoice.
type PayInvoiceParams struct {
	Invoice string `json:"invoice"`
}

// PayInvoiceResult is returned once a payment settles.
type PayInvoiceResult struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"`
}

// LookupInvoiceParams identifies an invoice by payment hash or bolt11.
type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

// ListTransactionsParams filters the wallet's transaction history.
type ListTransactionsParams struct {
	From   int64  `json:"from,omitempty"`
	Until  int64  `json:"until,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Unpaid bool   `json:"unpaid,omitempty"`
	Type   string `json:"type,omitempty"`
}

// ListTransactionsResult wraps the returned history page.
type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a single incoming or outgoing payment as reported by the
// wallet service. make_invoice and lookup_invoice reuse the same shape.
type Transaction struct {
	Type            string `json:"type"`
	Invoice         string `json:"invoice,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Preimage        string `json:"preimage,omitempty"`
	PaymentHash     string `json:"payment_hash"`
	Amount          int64  `json:"amount"`
	FeesPaid        int64  `json:"fees_paid"`
	CreatedAt       int64  `json:"created_at"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
	SettledAt       int64  `json:"settled_at,omitempty"`
}

// GetInfoResult describes the remote wallet service.
type GetInfoResult struct {
	Alias       string   `json:"alias"`
	Color       string   `json:"color,omitempty"`
	Pubkey      string   `json:"pubkey"`
	Network     string   `json:"network"`
	BlockHeight int64    `json:"block_height,omitempty"`
	Methods     []string `json:"methods"`
}
