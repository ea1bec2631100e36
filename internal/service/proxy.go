// Package service implements the core relay forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/model"
	"cors-relay/internal/provider"
)

// ErrUnknownRoute is returned when the path selects no provider.
var ErrUnknownRoute = errors.New("unknown API endpoint")

// ErrUpstreamTimeout is returned when the provider did not answer in time.
var ErrUpstreamTimeout = client.ErrTimeout

const contentTypeJSON = "application/json"

// Upstream is the outbound call the relay depends on.
type Upstream interface {
	Post(ctx context.Context, provider, url string, header http.Header, body []byte) (*model.RelayResponse, error)
}

// ProxyService turns a RelayRequest into one provider call.
type ProxyService struct {
	upstream     Upstream
	providers    *provider.Set
	authFallback bool
	logger       *slog.Logger
}

// NewProxyService creates a ProxyService from configuration.
func NewProxyService(c *client.UpstreamClient, providers *provider.Set, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return newProxyService(c, providers, cfg.Compat.AuthorizationFallbackEnabled(), logger)
}

func newProxyService(up Upstream, providers *provider.Set, authFallback bool, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		upstream:     up,
		providers:    providers,
		authFallback: authFallback,
		logger:       logger.With("component", "proxy_service"),
	}
}

// NewProviderSet builds the provider set from configuration.
func NewProviderSet(cfg *config.Config) (*provider.Set, error) {
	set, err := provider.NewSet(provider.Options{
		AnthropicBaseURL: cfg.Upstream.AnthropicBaseURL,
		OpenAIBaseURL:    cfg.Upstream.OpenAIBaseURL,
		AnthropicVersion: cfg.Upstream.AnthropicVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return set, nil
}

// Forward relays rr to the provider its path selects. Any upstream status,
// including non-2xx, is a successful relay and is returned as-is.
//
// Errors: ErrUnknownRoute when no provider matches (no upstream call is made),
// ErrUpstreamTimeout when the provider did not finish in time, anything else
// for transport failures.
func (s *ProxyService) Forward(rr *model.RelayRequest) (*model.RelayResponse, error) {
	p := s.providers.Resolve(rr.Path)
	if p == nil {
		return nil, ErrUnknownRoute
	}

	target := p.TargetURL(rr.Path, rr.RawQuery)
	header := s.buildHeaders(p, rr.Header)

	s.logger.Debug("forwarding request",
		"provider", p.Route.String(),
		"path", rr.Path,
	)

	resp, err := s.upstream.Post(rr.Ctx, p.Route.String(), target, header, rr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", p.Route, err)
	}
	return resp, nil
}

// buildHeaders assembles the outbound header set: a fixed JSON content type,
// the provider credential, then the provider's extra headers on top.
//
// When the provider credential header is absent and the Authorization
// fallback is enabled, an inbound Authorization header is copied under the
// name Authorization, even when the provider expects x-api-key.
func (s *ProxyService) buildHeaders(p *provider.Provider, in http.Header) http.Header {
	out := make(http.Header)
	out.Set("Content-Type", contentTypeJSON)

	if v := in.Values(p.CredentialHeader); len(v) > 0 {
		out[http.CanonicalHeaderKey(p.CredentialHeader)] = v
	} else if s.authFallback {
		if v := in.Values(provider.HeaderAuthorization); len(v) > 0 {
			out[provider.HeaderAuthorization] = v
		}
	}

	for key, vals := range p.ExtraHeaders(in) {
		out[http.CanonicalHeaderKey(key)] = vals
	}
	return out
}
