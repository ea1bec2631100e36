package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/model"
	"cors-relay/internal/provider"
)

// recordingUpstream captures the outbound call instead of making it.
type recordingUpstream struct {
	calls    int
	provider string
	url      string
	header   http.Header
	body     []byte

	resp *model.RelayResponse
	err  error
}

func (r *recordingUpstream) Post(_ context.Context, provider, url string, header http.Header, body []byte) (*model.RelayResponse, error) {
	r.calls++
	r.provider = provider
	r.url = url
	r.header = header
	r.body = body
	if r.err != nil {
		return nil, r.err
	}
	if r.resp != nil {
		return r.resp, nil
	}
	return &model.RelayResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProviders(t *testing.T, anthropicURL, openaiURL string) *provider.Set {
	t.Helper()
	set, err := provider.NewSet(provider.Options{
		AnthropicBaseURL: anthropicURL,
		OpenAIBaseURL:    openaiURL,
		AnthropicVersion: "2023-06-01",
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func newRecordingService(t *testing.T, authFallback bool) (*ProxyService, *recordingUpstream) {
	t.Helper()
	up := &recordingUpstream{}
	set := testProviders(t, "https://api.anthropic.com", "https://api.openai.com")
	return newProxyService(up, set, authFallback, testLogger()), up
}

func relayRequest(path string, header http.Header, body string) *model.RelayRequest {
	if header == nil {
		header = http.Header{}
	}
	return &model.RelayRequest{
		Ctx:    context.Background(),
		Path:   path,
		Header: header,
		Body:   []byte(body),
	}
}

func TestForward_Routing(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		wantURL      string
		wantProvider string
	}{
		{
			name:         "anthropic",
			path:         "/anthropic/v1/messages",
			wantURL:      "https://api.anthropic.com/v1/messages",
			wantProvider: "anthropic",
		},
		{
			name:         "openai",
			path:         "/openai/v1/chat/completions",
			wantURL:      "https://api.openai.com/v1/chat/completions",
			wantProvider: "openai",
		},
		{
			name:         "anthropic wins when both markers present",
			path:         "/openai/anthropic/v1/messages",
			wantURL:      "https://api.anthropic.com/openai/v1/messages",
			wantProvider: "anthropic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, up := newRecordingService(t, true)

			if _, err := s.Forward(relayRequest(tt.path, nil, `{"a":1}`)); err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
			if up.url != tt.wantURL {
				t.Errorf("url = %q, want %q", up.url, tt.wantURL)
			}
			if up.provider != tt.wantProvider {
				t.Errorf("provider = %q, want %q", up.provider, tt.wantProvider)
			}
			if string(up.body) != `{"a":1}` {
				t.Errorf("body = %q, want verbatim copy", up.body)
			}
		})
	}
}

func TestForward_UnknownRoute(t *testing.T) {
	s, up := newRecordingService(t, true)

	_, err := s.Forward(relayRequest("/gemini/v1/models", nil, `{}`))
	if !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("Forward() error = %v, want ErrUnknownRoute", err)
	}
	if up.calls != 0 {
		t.Errorf("upstream calls = %d, want 0", up.calls)
	}
}

func TestForward_PreservesQuery(t *testing.T) {
	s, up := newRecordingService(t, true)
	rr := relayRequest("/openai/v1/models", nil, "")
	rr.RawQuery = "after=abc"

	if _, err := s.Forward(rr); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if want := "https://api.openai.com/v1/models?after=abc"; up.url != want {
		t.Errorf("url = %q, want %q", up.url, want)
	}
}

func TestForward_WrapsUpstreamErrors(t *testing.T) {
	s, up := newRecordingService(t, true)
	up.err = errors.Join(client.ErrTimeout, context.DeadlineExceeded)

	_, err := s.Forward(relayRequest("/anthropic/v1/messages", nil, `{}`))
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Errorf("Forward() error = %v, want ErrUpstreamTimeout", err)
	}
}

func TestBuildHeaders(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		authFallback bool
		in           http.Header
		want         map[string]string // "" means absent
	}{
		{
			name:         "anthropic key and default version",
			path:         "/anthropic/v1/messages",
			authFallback: true,
			in:           http.Header{"X-Api-Key": {"sk-ant"}, "Content-Type": {"text/plain"}},
			want: map[string]string{
				"Content-Type":      "application/json",
				"X-Api-Key":         "sk-ant",
				"Anthropic-Version": "2023-06-01",
				"Authorization":     "",
			},
		},
		{
			name:         "anthropic caller version forwarded unchanged",
			path:         "/anthropic/v1/messages",
			authFallback: true,
			in:           http.Header{"X-Api-Key": {"sk-ant"}, "Anthropic-Version": {"2024-10-22"}},
			want: map[string]string{
				"Anthropic-Version": "2024-10-22",
			},
		},
		{
			name:         "anthropic key wins over authorization",
			path:         "/anthropic/v1/messages",
			authFallback: true,
			in:           http.Header{"X-Api-Key": {"sk-ant"}, "Authorization": {"Bearer other"}},
			want: map[string]string{
				"X-Api-Key":     "sk-ant",
				"Authorization": "",
			},
		},
		{
			name:         "anthropic falls back to authorization under its own name",
			path:         "/anthropic/v1/messages",
			authFallback: true,
			in:           http.Header{"Authorization": {"Bearer tok"}},
			want: map[string]string{
				"Authorization": "Bearer tok",
				"X-Api-Key":     "",
			},
		},
		{
			name:         "anthropic fallback disabled",
			path:         "/anthropic/v1/messages",
			authFallback: false,
			in:           http.Header{"Authorization": {"Bearer tok"}},
			want: map[string]string{
				"Authorization": "",
				"X-Api-Key":     "",
			},
		},
		{
			name:         "openai bearer copied",
			path:         "/openai/v1/chat/completions",
			authFallback: false,
			in:           http.Header{"Authorization": {"Bearer sk-oai"}, "X-Api-Key": {"ignored"}},
			want: map[string]string{
				"Content-Type":      "application/json",
				"Authorization":     "Bearer sk-oai",
				"X-Api-Key":         "",
				"Anthropic-Version": "",
			},
		},
		{
			name:         "no credentials",
			path:         "/openai/v1/chat/completions",
			authFallback: true,
			in:           http.Header{"Cookie": {"a=b"}},
			want: map[string]string{
				"Authorization": "",
				"Cookie":        "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, up := newRecordingService(t, tt.authFallback)
			if _, err := s.Forward(relayRequest(tt.path, tt.in, `{}`)); err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
			for key, want := range tt.want {
				if got := up.header.Get(key); got != want {
					t.Errorf("header %q = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestForward_Idempotent(t *testing.T) {
	s, up := newRecordingService(t, true)
	in := http.Header{"X-Api-Key": {"k"}}

	if _, err := s.Forward(relayRequest("/anthropic/v1/messages", in, `{"x":1}`)); err != nil {
		t.Fatalf("first Forward() error = %v", err)
	}
	firstURL, firstHeader := up.url, up.header.Clone()

	if _, err := s.Forward(relayRequest("/anthropic/v1/messages", in, `{"x":1}`)); err != nil {
		t.Fatalf("second Forward() error = %v", err)
	}
	if up.url != firstURL {
		t.Errorf("second url = %q, want %q", up.url, firstURL)
	}
	if len(up.header) != len(firstHeader) {
		t.Errorf("second header set = %v, want %v", up.header, firstHeader)
	}
	for key := range firstHeader {
		if up.header.Get(key) != firstHeader.Get(key) {
			t.Errorf("header %q changed between calls: %q != %q", key, up.header.Get(key), firstHeader.Get(key))
		}
	}
}

func TestForward_RelaysUpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/v1/messages")
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q, want %q", got, "2023-06-01")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			AnthropicBaseURL: upstream.URL,
			OpenAIBaseURL:    upstream.URL,
			AnthropicVersion: "2023-06-01",
			TimeoutSeconds:   10,
			IdleConnections:  10,
		},
	}
	logger := testLogger()
	set, err := NewProviderSet(cfg)
	if err != nil {
		t.Fatalf("NewProviderSet: %v", err)
	}
	svc := NewProxyService(client.NewUpstreamClient(cfg, logger, nil), set, cfg, logger)

	resp, err := svc.Forward(relayRequest("/anthropic/v1/messages", http.Header{"X-Api-Key": {"k"}}, `{}`))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if want := `{"type":"error","error":{"type":"rate_limit_error"}}`; string(resp.Body) != want {
		t.Errorf("body = %q, want %q", resp.Body, want)
	}
}

func TestNewProviderSet_BadURL(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			AnthropicBaseURL: "://bad",
			OpenAIBaseURL:    "https://api.openai.com",
		},
	}
	if _, err := NewProviderSet(cfg); err == nil {
		t.Fatal("NewProviderSet() expected error for malformed URL, got nil")
	}
}
