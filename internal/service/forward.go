// Package service implements the routing decision and upstream forwarding logic.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cors-devproxy/internal/client"
	"cors-devproxy/internal/config"
	"cors-devproxy/internal/model"
)

// ContentTypeJSON is the content type of every forwarded response.
const ContentTypeJSON = "application/json"

// Upstream performs a single blocking GET against a fully built target URL.
type Upstream interface {
	Get(ctx context.Context, target string) (*client.Response, error)
}

// ForwardService turns API requests into upstream calls and maps the outcome
// onto a client response. It holds no per-request state and is safe for
// concurrent use.
type ForwardService struct {
	upstream Upstream
	baseURL  string
	prefix   string
	logger   *slog.Logger
}

// NewForwardService creates a ForwardService for the configured upstream base
// URL and forwarding prefix.
func NewForwardService(up *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ForwardService, error) {
	return newForwardService(up, cfg, logger)
}

func newForwardService(up Upstream, cfg *config.Config, logger *slog.Logger) (*ForwardService, error) {
	if cfg.Upstream.BaseURL == "" {
		return nil, errors.New("upstream base_url is empty")
	}
	if !strings.HasPrefix(cfg.Upstream.Prefix, "/") || !strings.HasSuffix(cfg.Upstream.Prefix, "/") {
		return nil, fmt.Errorf("forwarding prefix %q must start and end with '/'", cfg.Upstream.Prefix)
	}

	return &ForwardService{
		upstream: up,
		baseURL:  strings.TrimSuffix(cfg.Upstream.BaseURL, "/"),
		prefix:   cfg.Upstream.Prefix,
		logger:   logger.With("component", "forward_service"),
	}, nil
}

// Prefix returns the forwarding prefix.
func (s *ForwardService) Prefix() string {
	return s.prefix
}

// BaseURL returns the upstream base URL without a trailing slash.
func (s *ForwardService) BaseURL() string {
	return s.baseURL
}

// Classify decides how a request is served from its raw request target
// (path plus query, as received on the wire).
func (s *ForwardService) Classify(requestTarget string) model.Route {
	return Classify(requestTarget, s.prefix)
}

// Classify returns RouteAPI with the text after prefix when requestTarget
// starts with prefix, and RouteStatic otherwise.
func Classify(requestTarget, prefix string) model.Route {
	if rest, ok := strings.CutPrefix(requestTarget, prefix); ok {
		return model.Route{Kind: model.RouteAPI, Remainder: rest}
	}
	return model.Route{Kind: model.RouteStatic}
}

// Target builds the upstream URL for a route remainder. The remainder is
// appended byte-for-byte; nothing is decoded or re-encoded.
func (s *ForwardService) Target(remainder string) string {
	return s.baseURL + "/" + remainder
}

// Forward calls the upstream for remainder and always returns a well-formed
// response; upstream failures never surface as errors.
func (s *ForwardService) Forward(ctx context.Context, remainder string) *model.ProxyResponse {
	target := s.Target(remainder)
	return Respond(s.Call(ctx, target))
}

// Call performs the upstream GET for target, classifies the result, and emits
// the diagnostic trace for it.
func (s *ForwardService) Call(ctx context.Context, target string) model.UpstreamOutcome {
	resp, err := s.upstream.Get(ctx, target)
	if err == nil {
		s.logger.Debug("upstream response",
			"url", target,
			"status", resp.StatusCode,
			"body", strings.ToValidUTF8(string(resp.Body), "\uFFFD"),
		)
		return model.UpstreamOutcome{
			Kind:       model.OutcomeSuccess,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		s.logger.Error("upstream http error",
			"url", target,
			"code", httpErr.StatusCode,
			"reason", httpErr.Reason,
		)
		return model.UpstreamOutcome{
			Kind:       model.OutcomeHTTPError,
			StatusCode: httpErr.StatusCode,
			Reason:     httpErr.Reason,
		}
	}

	s.logger.Error("upstream request failed",
		"url", target,
		"err", err.Error(),
		"timeout", client.IsTimeout(err),
	)
	return model.UpstreamOutcome{
		Kind:    model.OutcomeTransportError,
		Message: err.Error(),
	}
}

// Respond maps an upstream outcome onto the response sent to the client.
func Respond(o model.UpstreamOutcome) *model.ProxyResponse {
	switch o.Kind {
	case model.OutcomeSuccess:
		return &model.ProxyResponse{
			StatusCode:  o.StatusCode,
			ContentType: ContentTypeJSON,
			Body:        o.Body,
		}
	case model.OutcomeHTTPError:
		return &model.ProxyResponse{
			StatusCode:  o.StatusCode,
			ContentType: ContentTypeJSON,
			Body:        ErrorBody(fmt.Sprintf("%d - %s", o.StatusCode, o.Reason)),
		}
	default:
		return &model.ProxyResponse{
			StatusCode:  http.StatusInternalServerError,
			ContentType: ContentTypeJSON,
			Body:        ErrorBody(o.Message),
		}
	}
}

// ErrorBody renders {"error": "<msg>"} as UTF-8 JSON.
func ErrorBody(msg string) []byte {
	quoted, err := json.Marshal(msg)
	if err != nil {
		// json.Marshal only fails on unsupported types; a string never does.
		quoted = []byte(`""`)
	}
	return append(append([]byte(`{"error": `), quoted...), '}')
}
