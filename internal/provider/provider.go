// Package provider decides which upstream AI API an inbound path targets and
// how the outbound request to it is addressed and authenticated.
package provider

import (
	"net/http"
	"net/url"
	"strings"
)

// Route identifies the upstream selected for a request path.
type Route int

const (
	Unrecognized Route = iota
	Anthropic
	OpenAI
)

// String returns the lowercase route name used in logs and metric labels.
func (r Route) String() string {
	switch r {
	case Anthropic:
		return "anthropic"
	case OpenAI:
		return "openai"
	default:
		return "unrecognized"
	}
}

// Header names the relay reads from or writes to.
const (
	HeaderAPIKey           = "x-api-key"
	HeaderAnthropicVersion = "anthropic-version"
	HeaderAuthorization    = "Authorization"
)

// Provider describes one upstream API.
type Provider struct {
	Route Route
	// Marker is the path segment that selects this provider. A path matches
	// when it contains Marker followed by a slash.
	Marker string
	// BaseURL is scheme and host, e.g. https://api.anthropic.com.
	BaseURL *url.URL
	// CredentialHeader is copied from the inbound request when present.
	CredentialHeader string
	// Extra builds headers overlaid on the outbound request after credentials.
	Extra func(in http.Header) http.Header
}

// Matches reports whether path selects this provider.
func (p *Provider) Matches(path string) bool {
	return strings.Contains(path, p.Marker+"/")
}

// TargetPath strips the first occurrence of the marker from path.
func (p *Provider) TargetPath(path string) string {
	return strings.Replace(path, p.Marker, "", 1)
}

// TargetURL returns the upstream URL for an inbound escaped path and raw
// query. Percent-encoded segments such as %2F are kept as sent.
func (p *Provider) TargetURL(escapedPath, rawQuery string) string {
	u := *p.BaseURL
	u.RawPath = strings.TrimSuffix(p.BaseURL.EscapedPath(), "/") + p.TargetPath(escapedPath)
	if decoded, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = decoded
	} else {
		u.Path = u.RawPath
		u.RawPath = ""
	}
	u.RawQuery = rawQuery
	return u.String()
}

// ExtraHeaders returns the provider's extra outbound headers, never nil.
func (p *Provider) ExtraHeaders(in http.Header) http.Header {
	if p.Extra == nil {
		return http.Header{}
	}
	return p.Extra(in)
}

// Set is the ordered list of known providers. Resolution is first match wins.
type Set struct {
	providers []*Provider
}

// Options configures NewSet.
type Options struct {
	AnthropicBaseURL string
	OpenAIBaseURL    string
	// AnthropicVersion is sent when the caller does not supply anthropic-version.
	AnthropicVersion string
}

// NewSet builds the Anthropic and OpenAI providers, in that match order.
func NewSet(opts Options) (*Set, error) {
	anthropicURL, err := url.Parse(opts.AnthropicBaseURL)
	if err != nil {
		return nil, err
	}
	openaiURL, err := url.Parse(opts.OpenAIBaseURL)
	if err != nil {
		return nil, err
	}
	version := opts.AnthropicVersion

	return &Set{providers: []*Provider{
		{
			Route:            Anthropic,
			Marker:           "/anthropic",
			BaseURL:          anthropicURL,
			CredentialHeader: HeaderAPIKey,
			Extra: func(in http.Header) http.Header {
				v := in.Get(HeaderAnthropicVersion)
				if v == "" {
					v = version
				}
				h := http.Header{}
				h.Set(HeaderAnthropicVersion, v)
				return h
			},
		},
		{
			Route:            OpenAI,
			Marker:           "/openai",
			BaseURL:          openaiURL,
			CredentialHeader: HeaderAuthorization,
		},
	}}, nil
}

// Resolve returns the first provider whose marker the path contains, or nil.
func (s *Set) Resolve(path string) *Provider {
	for _, p := range s.providers {
		if p.Matches(path) {
			return p
		}
	}
	return nil
}

// RouteOf returns the route decision for path.
func (s *Set) RouteOf(path string) Route {
	if p := s.Resolve(path); p != nil {
		return p.Route
	}
	return Unrecognized
}

// All returns the providers in match order.
func (s *Set) All() []*Provider {
	return s.providers
}
