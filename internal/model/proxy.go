// Package model defines shared types for the relay.
package model

import (
	"context"
	"net/http"
)

// RelayRequest is an inbound POST to be forwarded to a provider.
// Path is the escaped request path, so percent-encoded segments reach the
// provider unchanged. Body holds exactly the bytes announced by Content-Length.
type RelayRequest struct {
	Ctx      context.Context
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// RelayResponse is the provider's answer, fully buffered. Provider headers
// are not relayed; the response is always sent as application/json.
type RelayResponse struct {
	StatusCode int
	Body       []byte
}
