package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/config"
	"cors-relay/internal/model"
	"cors-relay/internal/service"
)

// Inbound length errors. The relay reads exactly Content-Length bytes, so the
// header is mandatory.
var (
	ErrLengthRequired = errors.New("Content-Length header required")
	ErrInvalidLength  = errors.New("invalid Content-Length header")
	ErrIncompleteBody = errors.New("request body shorter than Content-Length")
)

// ProxyHandler relays POST requests to the provider selected by the path.
type ProxyHandler struct {
	service *service.ProxyService
	timeout time.Duration
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		timeout: cfg.Upstream.Timeout(),
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request body verbatim and relays the provider's status
// and body unchanged, always as application/json.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := readDeclaredBody(req)
	if err != nil {
		return h.mapError(c, err)
	}

	resp, err := h.service.Forward(&model.RelayRequest{
		Ctx:      req.Context(),
		Path:     req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     body,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
}

// readDeclaredBody reads exactly the number of bytes announced by Content-Length.
func readDeclaredBody(req *http.Request) ([]byte, error) {
	raw := strings.TrimSpace(req.Header.Get(echo.HeaderContentLength))
	if raw == "" {
		return nil, ErrLengthRequired
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil, ErrInvalidLength
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, n))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) < n {
		return nil, ErrIncompleteBody
	}
	return body, nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, ErrLengthRequired):
		h.logger.Warn("rejected request", "err", err, "path", path)
		return writeError(c, http.StatusLengthRequired, err.Error())
	case errors.Is(err, ErrInvalidLength), errors.Is(err, ErrIncompleteBody):
		h.logger.Warn("rejected request", "err", err, "path", path)
		return writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnknownRoute):
		h.logger.Debug("unknown route", "path", path)
		return writeError(c, http.StatusNotFound, "Unknown API endpoint")
	case errors.Is(err, service.ErrUpstreamTimeout):
		h.logger.Error("upstream timeout", "err", err, "path", path, "timeout", h.timeout)
		return writeError(c, http.StatusGatewayTimeout,
			fmt.Sprintf("Request timeout (%ds exceeded)", int(h.timeout.Seconds())))
	}

	// Body limit violations surface from the body reader as echo errors.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return writeError(c, he.Code, http.StatusText(he.Code))
	}

	h.logger.Error("relay error", "err", err, "path", path)
	return writeError(c, http.StatusInternalServerError, err.Error())
}

// writeError writes {"error": "<msg>"} with the given status.
func writeError(c echo.Context, status int, msg string) error {
	quoted, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	body := make([]byte, 0, len(quoted)+12)
	body = append(body, `{"error": `...)
	body = append(body, quoted...)
	body = append(body, '}')
	return c.Blob(status, echo.MIMEApplicationJSON, body)
}

// ErrorHandler renders errors that escape handlers and middleware (router
// 404/405, body limit, rate limit, recovered panics) in the relay's
// {"error": ...} shape.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok && s != "" {
				msg = s
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("unhandled error", "err", err, "path", c.Request().URL.Path)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = writeError(c, status, msg)
		}
		if err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}
