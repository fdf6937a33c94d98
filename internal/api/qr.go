package api

import (
	"net/http"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	maxQRData = 4096
	minQRSize = 64
	maxQRSize = 1024
	defQRSize = 256
)

// handleQR renders a QR code PNG for arbitrary data: invoices, cashu
// tokens, connection URIs. Rendering server-side keeps the front-end free
// of an encode dependency.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing data parameter")
		return
	}
	if len(data) > maxQRData {
		writeError(w, http.StatusBadRequest, "too_long", "data exceeds QR capacity")
		return
	}

	size := defQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < minQRSize || parsed > maxQRSize {
			writeError(w, http.StatusBadRequest, "bad_size", "size must be between 64 and 1024")
			return
		}
		size = parsed
	}

	png, err := qrcode.Encode(data, qrcode.Medium, size)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "encode_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
