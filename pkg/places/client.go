// Package places is a client for the Google Places JSON web service (text
// search, nearby search, details).
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tainan-eats/storedir/internal/resilience"
)

// DefaultBaseURL is the legacy Places web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client performs Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error)
	NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error)
	Details(ctx context.Context, req DetailsRequest) (*DetailsResponse, error)
}

// StatusError is returned when the provider answers with a status other than
// OK or ZERO_RESULTS.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "places: status " + e.Status
	}
	return fmt.Sprintf("places: status %s: %s", e.Status, e.Message)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Status == StatusOverQueryLimit || e.Status == StatusUnknownError
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLanguage sets the language parameter (e.g. "zh-TW").
func WithLanguage(lang string) Option {
	return func(c *httpClient) {
		c.language = lang
	}
}

// WithRegion sets the region bias parameter (e.g. "tw").
func WithRegion(region string) Option {
	return func(c *httpClient) {
		c.region = region
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	language string
	region   string
	http     *http.Client
}

// NewClient creates a Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error) {
	q := url.Values{}
	if req.PageToken != "" {
		q.Set("pagetoken", req.PageToken)
	} else {
		q.Set("query", req.Query)
	}

	var resp SearchResponse
	if err := c.get(ctx, "/textsearch/json", q, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error) {
	q := url.Values{}
	if req.PageToken != "" {
		q.Set("pagetoken", req.PageToken)
	} else {
		q.Set("location", strconv.FormatFloat(req.Location.Lat, 'f', -1, 64)+","+strconv.FormatFloat(req.Location.Lng, 'f', -1, 64))
		q.Set("radius", strconv.Itoa(req.RadiusM))
		if req.Keyword != "" {
			q.Set("keyword", req.Keyword)
		}
	}

	var resp SearchResponse
	if err := c.get(ctx, "/nearbysearch/json", q, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) Details(ctx context.Context, req DetailsRequest) (*DetailsResponse, error) {
	if req.PlaceID == "" {
		return nil, eris.New("places: details requires a place id")
	}
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultDetailFields
	}

	q := url.Values{}
	q.Set("place_id", req.PlaceID)
	q.Set("fields", strings.Join(fields, ","))

	var resp DetailsResponse
	if err := c.get(ctx, "/details/json", q, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}
	if c.region != "" {
		q.Set("region", c.region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "places: unmarshal response")
	}
	return nil
}

func checkStatus(status, message string) error {
	switch status {
	case StatusOK, StatusZeroResults:
		return nil
	}
	se := &StatusError{Status: status, Message: message}
	if se.Transient() {
		return resilience.NewTransientError(se, 0)
	}
	return se
}

// PhotoURL builds the displayable URL for a photo reference.
func PhotoURL(baseURL, ref, key string, maxWidth int) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxWidth <= 0 {
		maxWidth = 800
	}
	q := url.Values{}
	q.Set("maxwidth", strconv.Itoa(maxWidth))
	q.Set("photo_reference", ref)
	q.Set("key", key)
	return strings.TrimRight(baseURL, "/") + "/photo?" + q.Encode()
}
