package fipe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public FIPE API
	DefaultBaseURL = "https://fipe.parallelum.com.br/api/v2"
	// SubscriptionTokenHeader carries the API token
	SubscriptionTokenHeader = "X-Subscription-Token"

	maxBodySize    = 4 << 20
	maxErrorBody   = 512
	defaultTimeout = 30 * time.Second
)

// Fetcher returns the JSON body of a GET against the FIPE API, path being
// relative to the base URL.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (json.RawMessage, error)
}

// ClientConfig holds the upstream settings
type ClientConfig struct {
	BaseURL string
	// Token may be empty; the header is then sent with an empty value
	Token     string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *logger.Logger
}

// Client is the HTTP Fetcher for the FIPE API. It never retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a Client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Transport: cfg.Transport, Timeout: cfg.Timeout},
		log:     cfg.Logger,
	}
}

// Fetch issues one GET to baseURL+path
func (c *Client) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "fipe.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("fipe.path", path)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set(SubscriptionTokenHeader, c.token)
	req.Header.Set("Content-Type", "application/json")
	telemetry.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	c.log.Debug("Fetching FIPE data", zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	tooLarge := len(body) > maxBodySize

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		uerr := &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
		c.log.Warn("FIPE API returned an error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", uerr.Body))
		telemetry.RecordError(span, uerr)
		return nil, uerr
	}

	if tooLarge {
		c.log.Error("FIPE response exceeds size limit",
			zap.String("path", path),
			zap.Int("limit_bytes", maxBodySize))
		telemetry.RecordError(span, ErrTooLarge)
		return nil, ErrTooLarge
	}
	if !json.Valid(body) {
		telemetry.RecordError(span, ErrDecode)
		return nil, ErrDecode
	}
	return json.RawMessage(body), nil
}
