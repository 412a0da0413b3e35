package weather

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

	"github.com/lewisedginton/weather_chatbot/pkg/health"
	"github.com/lewisedginton/weather_chatbot/pkg/health/checkers"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// Client looks up current conditions. It is safe for concurrent use and holds
// no per-request state.
type Client struct {
	apiKey     string
	baseURL    string
	lang       string
	iconScheme string
	httpClient *http.Client
	log        logger.Logger
	metrics    *clientMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a weather client. Zero-valued config fields fall back to
// the package defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		lang:       cfg.Lang,
		iconScheme: cfg.IconScheme,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.NewNopLogger(),
		metrics:    newClientMetrics(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collectors returns the Prometheus collectors owned by this client so the
// caller can register them.
func (c *Client) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.metrics.requests, c.metrics.duration}
}

// currentResponse mirrors the subset of /current.json that is used. Pointers
// distinguish a missing field from a zero value.
type currentResponse struct {
	Error    json.RawMessage `json:"error"`
	Location *struct {
		Name    *string `json:"name"`
		Country *string `json:"country"`
	} `json:"location"`
	Current *struct {
		TempC     *float64 `json:"temp_c"`
		Humidity  *float64 `json:"humidity"`
		WindKPH   *float64 `json:"wind_kph"`
		Condition *struct {
			Text *string `json:"text"`
			Icon *string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Fetch returns current conditions for city. Every failure wraps either
// ErrCityNotFound or ErrTransport.
func (c *Client) Fetch(ctx context.Context, city string) (Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		c.metrics.observe(ReasonNotFound, 0)
		return Report{}, fmt.Errorf("empty city name: %w", ErrCityNotFound)
	}

	start := time.Now()
	report, err := c.fetch(ctx, city)
	c.metrics.observe(Reason(err), time.Since(start).Seconds())

	log := logger.GetLoggerFromContext(ctx, c.log).WithFields(
		logger.StringField("city", city),
		logger.DurationField("duration", time.Since(start)),
	)
	if err != nil {
		log.Debug("Weather lookup failed", logger.ErrorField(err))
		return Report{}, err
	}
	log.Debug("Weather lookup succeeded")
	return report, nil
}

func (c *Client) fetch(ctx context.Context, city string) (Report, error) {
	reqURL, err := c.buildRequestURL(city)
	if err != nil {
		return Report{}, fmt.Errorf("%w: failed to build request: %w", ErrTransport, err)
	}

	body, statusCode, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return c.parseResponse(statusCode, body)
}

func (c *Client) buildRequestURL(city string) (string, error) {
	u, err := url.Parse(c.baseURL + "/current.json")
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("q", city)
	q.Set("lang", c.lang)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error would echo the query string, including the API key
		return nil, 0, fmt.Errorf("request failed: %w", redactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func (c *Client) parseResponse(statusCode int, body []byte) (Report, error) {
	var raw currentResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Report{}, fmt.Errorf("%w: failed to parse response (status %d): %w", ErrTransport, statusCode, err)
	}

	if len(raw.Error) > 0 {
		var apiErr apiError
		_ = json.Unmarshal(raw.Error, &apiErr)
		return Report{}, fmt.Errorf("provider error %d %q (status %d): %w", apiErr.Code, apiErr.Message, statusCode, ErrCityNotFound)
	}

	if statusCode != http.StatusOK {
		return Report{}, fmt.Errorf("unexpected status %d: %w", statusCode, ErrTransport)
	}

	if missing := missingFields(raw); len(missing) > 0 {
		return Report{}, fmt.Errorf("response missing %s: %w", strings.Join(missing, ", "), ErrTransport)
	}

	report := Report{
		IconURL:   absoluteIconURL(c.iconScheme, *raw.Current.Condition.Icon),
		City:      *raw.Location.Name,
		Country:   *raw.Location.Country,
		TempC:     *raw.Current.TempC,
		Condition: *raw.Current.Condition.Text,
		Humidity:  *raw.Current.Humidity,
		WindKPH:   *raw.Current.WindKPH,
	}
	report.Summary = FormatSummary(report)

	return report, nil
}

func missingFields(raw currentResponse) []string {
	var missing []string
	if raw.Location == nil {
		missing = append(missing, "location")
	} else {
		if raw.Location.Name == nil {
			missing = append(missing, "location.name")
		}
		if raw.Location.Country == nil {
			missing = append(missing, "location.country")
		}
	}
	if raw.Current == nil {
		return append(missing, "current")
	}
	if raw.Current.TempC == nil {
		missing = append(missing, "current.temp_c")
	}
	if raw.Current.Humidity == nil {
		missing = append(missing, "current.humidity")
	}
	if raw.Current.WindKPH == nil {
		missing = append(missing, "current.wind_kph")
	}
	if raw.Current.Condition == nil {
		return append(missing, "current.condition")
	}
	if raw.Current.Condition.Text == nil {
		missing = append(missing, "current.condition.text")
	}
	if raw.Current.Condition.Icon == nil {
		missing = append(missing, "current.condition.icon")
	}
	return missing
}

func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s %s: %w", urlErr.Op, redactKey(urlErr.URL), urlErr.Err)
	}
	return err
}

func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<redacted>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// HealthCheck returns a readiness check that fails when the provider answers
// with a 5xx status or cannot be reached.
func (c *Client) HealthCheck() health.Check {
	return checkers.NewHTTPChecker("weather-api", c.baseURL, c.httpClient)
}

// Ping probes the provider once.
func (c *Client) Ping(ctx context.Context) error {
	return c.HealthCheck().Check(ctx)
}
