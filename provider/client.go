// Package provider fetches flow-segment observations from the traffic-data
// provider's HTTP API.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL     = "https://api.tomtom.com"
	flowSegmentPath    = "/traffic/services/4/flowSegmentData/absolute/10/json"
	DefaultTimeout     = 10 * time.Second
	DefaultRetries     = 2
	DefaultBackoff     = 250 * time.Millisecond
	DefaultParallelism = 4
)

// FlowSegment is the subset of the provider's flowSegmentData object that is
// recorded. A nil field means the provider omitted it.
type FlowSegment struct {
	RoadName           *string  `json:"roadName"`
	FRC                *string  `json:"frc"`
	CurrentSpeed       *float64 `json:"currentSpeed"`
	FreeFlowSpeed      *float64 `json:"freeFlowSpeed"`
	CurrentTravelTime  *float64 `json:"currentTravelTime"`
	FreeFlowTravelTime *float64 `json:"freeFlowTravelTime"`
	Confidence         *float64 `json:"confidence"`
	RoadClosure        *bool    `json:"roadClosure"`
}

type flowResponse struct {
	FlowSegmentData FlowSegment `json:"flowSegmentData"`
}

// UpstreamFetchError reports a failed fetch for one point. Status is the
// HTTP status when a response arrived, zero otherwise.
type UpstreamFetchError struct {
	Point  string
	Status int
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("fetch point %s: provider returned status %d", e.Point, e.Status)
	}
	return fmt.Sprintf("fetch point %s: %v", e.Point, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

func (e *UpstreamFetchError) retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Retries     int
	Backoff     time.Duration
	Parallelism int
	// Transport is wrapped with otelhttp; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	retries     int
	backoff     time.Duration
	parallelism int
	tracer      trace.Tracer
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   opts.Timeout,
		},
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		parallelism: opts.Parallelism,
		tracer:      otel.Tracer("provider-client"),
	}
}

func (c *Client) flowURL(point string) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("point", point)
	q.Set("unit", "KMPH")
	q.Set("thickness", "2")
	q.Set("openLr", "false")
	return c.baseURL + flowSegmentPath + "?" + q.Encode()
}

// FetchFlowSegment fetches the flow segment nearest to point ("lat,lon").
// Transport errors, 429 and 5xx responses are retried with exponential backoff.
func (c *Client) FetchFlowSegment(ctx context.Context, point string) (*FlowSegment, error) {
	ctx, span := c.tracer.Start(ctx, "provider.fetch_flow_segment",
		trace.WithAttributes(attribute.String("point", point)),
	)
	defer span.End()

	var lastErr *UpstreamFetchError
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				lastErr = &UpstreamFetchError{Point: point, Err: ctx.Err()}
				recordError(span, lastErr)
				return nil, lastErr
			case <-time.After(wait):
			}
		}

		seg, err := c.fetchOnce(ctx, point)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			span.SetStatus(codes.Ok, "")
			return seg, nil
		}
		lastErr = err
		if !err.retryable() || ctx.Err() != nil {
			break
		}
	}
	recordError(span, lastErr)
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, point string) (*FlowSegment, *UpstreamFetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.flowURL(point), nil)
	if err != nil {
		return nil, &UpstreamFetchError{Point: point, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamFetchError{Point: point, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UpstreamFetchError{
			Point:  point,
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(body))),
		}
	}

	var payload flowResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		// a 200 with a broken body will not improve on retry
		return nil, &UpstreamFetchError{Point: point, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &payload.FlowSegmentData, nil
}

func recordError(span trace.Span, err *UpstreamFetchError) {
	span.RecordError(err, trace.WithAttributes(
		attribute.Int("http.status_code", err.Status),
		attribute.Bool("error.transient", err.retryable()),
	))
	span.SetStatus(codes.Error, err.Error())
}
