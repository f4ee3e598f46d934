package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/stayware/message-etl/pkg/logger"
	"github.com/stayware/message-etl/pkg/prom"
	"github.com/valyala/fasthttp"
)

// Hostaway access tokens last up to 24 months; when the response omits
// expires_in we assume 6 months.
const defaultTokenLifetimeSeconds = 15897600

// tokenRefreshFraction refreshes the cached token at 90% of its reported
// lifetime.
const tokenRefreshFraction = 0.9

const defaultPageSize = 100

// AuthError is returned when the client-credentials exchange itself fails.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("hostaway authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is returned when a Hostaway call fails after retries, or when a
// 200 response carries a non-success envelope status.
type APIError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hostaway api error: %s: %v", e.Message, e.Err)
	}
	return "hostaway api error: " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Envelope is the response shape shared by every Hostaway endpoint.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RawConversation is one record from the /conversations listing, as the
// upstream returns it. Optional fields are pointers so the transformer can
// distinguish absent from empty.
type RawConversation struct {
	ID                int64   `json:"id"`
	ListingMapID      *int64  `json:"listingMapId"`
	ListingName       string  `json:"listingName"`
	ReservationID     *int64  `json:"reservationId"`
	GuestName         string  `json:"guestName"`
	GuestEmail        *string `json:"guestEmail"`
	GuestPhoneNumber  *string `json:"guestPhoneNumber"`
	GuestNationality  *string `json:"guestNationality"`
	RecipientName     string  `json:"recipientName"`
	RecipientEmail    *string `json:"recipientEmail"`
	Phone             *string `json:"phone"`
	IsIncoming        *bool   `json:"isIncoming"`
	Type              string  `json:"type"`
	Content           *string `json:"content"`
	InsertedOn        *string `json:"insertedOn"`
	UpdatedOn         *string `json:"updatedOn"`
	MessageSentOn     *string `json:"messageSentOn"`
	MessageReceivedOn *string `json:"messageReceivedOn"`
}

// ConversationMessage is one entry of a conversation's message thread.
type ConversationMessage struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// Listing is the subset of a property-detail lookup the pipeline uses.
type Listing struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ReservationDetails carries the authoritative guest identity and price
// for a booking.
type ReservationDetails struct {
	ID               int64    `json:"id"`
	GuestName        string   `json:"guestName"`
	GuestEmail       *string  `json:"guestEmail"`
	Phone            *string  `json:"phone"`
	GuestNationality *string  `json:"guestNationality"`
	TotalPrice       *float64 `json:"totalPrice"`
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// RequestDelay is slept before every outbound call to respect the
	// upstream rate limit.
	RequestDelay time.Duration
	// RetryDelay is the base of the linear backoff between transport
	// retries (delay * attempt).
	RetryDelay time.Duration
	MaxRetries int
	Timeout    time.Duration
	PageSize   int

	// DryRun short-circuits every network call with an empty success
	// envelope.
	DryRun bool
}

type Client struct {
	config *Config
	client *fasthttp.Client

	token          string
	tokenExpiresAt time.Time

	// sleep is swapped out in tests
	sleep func(d time.Duration)
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}

	c := &Client{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		sleep: time.Sleep,
	}

	logger.Info("Hostaway client initialized", "base_url", config.BaseURL, "dry_run", config.DryRun)

	return c, nil
}

// Authenticate exchanges the client credentials for a bearer token. The
// token is cached and re-requested only once 90% of its lifetime has
// passed.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	if c.config.DryRun {
		logger.Info("DRY RUN: would request access token from Hostaway")
		c.token = "dry-run-token"
		c.tokenExpiresAt = time.Now().Add(30 * 24 * time.Hour)
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("scope", "general")

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + "/accessTokens")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Cache-control", "no-cache")
	req.SetBodyString(form.Encode())

	logger.Info("requesting new access token from Hostaway")
	if err := c.do(ctx, req, resp); err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", &AuthError{Err: fmt.Errorf("unexpected status code %d: %s", resp.StatusCode(), resp.Body())}
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decoding token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Err: errors.New("token response carried no access_token")}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultTokenLifetimeSeconds
	}
	c.token = tok.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(float64(expiresIn)*tokenRefreshFraction) * time.Second)

	logger.Info("obtained access token", "valid_until", c.tokenExpiresAt.Format(time.RFC3339))
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.token = ""
	c.tokenExpiresAt = time.Time{}
}

// Request performs one Hostaway call with the full retry contract: a
// rate-limit delay before each attempt, one token refresh on 401/403,
// up to MaxRetries attempts with linear backoff on transport failures,
// and an APIError for non-success envelopes.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any) (*Envelope, error) {
	if c.config.DryRun {
		logger.Info("DRY RUN: would request Hostaway", "method", method, "path", path)
		return &Envelope{Status: "success"}, nil
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	uri := c.config.BaseURL + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	var encoded []byte
	if body != nil {
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	attempts := 0
	reauthed := false
	var lastErr error

	for attempts < c.config.MaxRetries {
		if attempts == 0 {
			c.sleep(c.config.RequestDelay)
		} else {
			c.sleep(c.config.RetryDelay * time.Duration(attempts))
		}

		status, respBody, err := c.roundTrip(ctx, method, uri, token, encoded)
		prom.IncCounter(prom.SystemPipeline, prom.MetricAPIRequests)
		if err != nil {
			attempts++
			lastErr = err
			logger.Error("request error", "method", method, "path", path, "attempt", attempts, "max_retries", c.config.MaxRetries, "error", err)
			continue
		}

		if status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden {
			if reauthed {
				return nil, &APIError{Message: "authentication rejected after token refresh", StatusCode: status}
			}
			logger.Warn("authentication error, refreshing token and retrying")
			c.invalidateToken()
			token, err = c.Authenticate(ctx)
			if err != nil {
				return nil, err
			}
			reauthed = true
			continue
		}

		if status >= fasthttp.StatusBadRequest {
			attempts++
			lastErr = fmt.Errorf("unexpected status code %d", status)
			logger.Error("request error", "method", method, "path", path, "status", status, "attempt", attempts, "max_retries", c.config.MaxRetries)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			attempts++
			lastErr = fmt.Errorf("decoding response: %w", err)
			continue
		}

		if env.Status != "success" {
			msg := env.Message
			if msg == "" {
				msg = "unknown API error"
			}
			logger.Error("Hostaway API error", "message", msg)
			return nil, &APIError{Message: msg, StatusCode: status}
		}

		return &env, nil
	}

	return nil, &APIError{
		Message: fmt.Sprintf("failed after %d attempts", c.config.MaxRetries),
		Err:     lastErr,
	}
}

func (c *Client) roundTrip(ctx context.Context, method, uri, token string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Cache-control", "no-cache")
	if body != nil {
		req.SetBody(body)
	}

	if err := c.do(ctx, req, resp); err != nil {
		return 0, nil, err
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return nil
}

// Messages returns a cursor over every conversation since the given time.
// The cursor pages through /conversations with limit/offset and stops once
// a page comes back short or empty.
func (c *Client) Messages(since *time.Time) *ConversationCursor {
	return &ConversationCursor{
		client: c,
		since:  since,
		limit:  c.config.PageSize,
	}
}

// GetListing fetches property details for enrichment.
func (c *Client) GetListing(ctx context.Context, id int64) (*Listing, error) {
	env, err := c.Request(ctx, fasthttp.MethodGet, "/listings/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := unmarshalResult(env, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetReservation fetches reservation details for enrichment.
func (c *Client) GetReservation(ctx context.Context, id int64) (*ReservationDetails, error) {
	env, err := c.Request(ctx, fasthttp.MethodGet, "/reservations/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	var r ReservationDetails
	if err := unmarshalResult(env, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ConversationMessages fetches the message thread of one conversation.
func (c *Client) ConversationMessages(ctx context.Context, id int64) ([]ConversationMessage, error) {
	env, err := c.Request(ctx, fasthttp.MethodGet, "/conversations/"+strconv.FormatInt(id, 10)+"/messages", nil, nil)
	if err != nil {
		return nil, err
	}
	var msgs []ConversationMessage
	if err := unmarshalResult(env, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func unmarshalResult(env *Envelope, dst any) error {
	if len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, dst); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
