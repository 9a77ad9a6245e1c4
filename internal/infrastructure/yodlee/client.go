package yodlee

import (
	"bytes"
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
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://sandbox.api.yodlee.com/ysl"
	apiVersion       = "1.1"
	defaultTimeout   = 60 * time.Second
	defaultTokenTTL  = 30 * time.Minute
	authTokenPath    = "/auth/token"
	accountsPath     = "/accounts"
	transactionsPath = "/transactions"
	providersPath    = "/providers/"
	registerPath     = "/user/register"
)

var clientTracer = otel.Tracer("ledgersync/yodlee")

// Config configures a Client.
type Config struct {
	BaseURL        string
	ClientID       string
	Secret         string
	AdminLoginName string

	// RequestsPerSecond caps outbound requests across all connections; zero disables the limit.
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to the aggregator's v1.1 REST API.
//
// Authentication is two-step: client credentials plus a login name are
// exchanged for an access token. The admin login name yields the client-level
// token used for institution lookups and registration; a connection's session
// token is its user login name and yields the user-level token.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	clientID       string
	secret         string
	adminLoginName string
	limiter        *rate.Limiter
	tokens         *tokenCache
	refresh        singleflight.Group
	logger         *zap.Logger
	now            func() time.Time
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new aggregator API client
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		clientID:       cfg.ClientID,
		secret:         cfg.Secret,
		adminLoginName: cfg.AdminLoginName,
		limiter:        limiter,
		tokens:         newTokenCache(),
		logger:         logger.Named("yodlee"),
		now:            time.Now,
	}
}

// GetAccounts fetches every account visible to the session's user.
func (c *Client) GetAccounts(ctx context.Context, sessionToken string) ([]Account, error) {
	var resp accountsResponse
	if err := c.getWithAuth(ctx, "get_accounts", sessionToken, accountsPath, nil, &resp); err != nil {
		return nil, err
	}
	accounts := decodeAccounts(resp.Account)
	c.warnMalformed("get_accounts", len(accounts), func(i int) error { return accounts[i].Err })
	return accounts, nil
}

// GetTransactions fetches transactions across all of the session's accounts
// for the inclusive date window.
func (c *Client) GetTransactions(ctx context.Context, sessionToken string, from, to time.Time) ([]Transaction, error) {
	query := url.Values{}
	query.Set("fromDate", from.Format(dateLayout))
	query.Set("toDate", to.Format(dateLayout))

	var resp transactionsResponse
	if err := c.getWithAuth(ctx, "get_transactions", sessionToken, transactionsPath, query, &resp); err != nil {
		return nil, err
	}
	txs := decodeTransactions(resp.Transaction)
	c.warnMalformed("get_transactions", len(txs), func(i int) error { return txs[i].Err })
	return txs, nil
}

// warnMalformed logs how many of n records failed to decode.
func (c *Client) warnMalformed(op string, n int, errAt func(int) error) {
	bad := 0
	var first error
	for i := 0; i < n; i++ {
		if err := errAt(i); err != nil {
			if first == nil {
				first = err
			}
			bad++
		}
	}
	if bad > 0 {
		c.logger.Warn("Provider returned malformed records",
			zap.String("op", op),
			zap.Int("malformed", bad),
			zap.Int("total", n),
			zap.Error(first),
		)
	}
}

// GetInstitution fetches one provider using the client-level token.
// Returns nil without error when the provider is unknown to the aggregator.
func (c *Client) GetInstitution(ctx context.Context, providerID string) (*Institution, error) {
	if providerID == "" {
		return nil, errors.New("provider ID is required")
	}

	var resp providersResponse
	if err := c.getWithAuth(ctx, "get_institution", c.adminLoginName, providersPath+url.PathEscape(providerID), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Provider) == 0 {
		return nil, nil
	}
	return &resp.Provider[0], nil
}

// EnsureUser makes sure loginName exists at the aggregator, registering it
// with the client-level token when no user token can be issued for it.
func (c *Client) EnsureUser(ctx context.Context, loginName, email string) error {
	if loginName == "" {
		return errors.New("login name is required")
	}

	if _, err := c.accessToken(ctx, loginName); err == nil {
		return nil
	}

	c.logger.Info("User not registered, attempting registration")

	body, err := json.Marshal(map[string]any{
		"user": map[string]any{
			"loginName": loginName,
			"email":     email,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	regErr := c.withAuthRetry(ctx, c.adminLoginName, func(token string) error {
		return c.do(ctx, "register_user", http.MethodPost, registerPath, nil, token, bytes.NewReader(body), "application/json", nil)
	})
	if regErr != nil && !IsTransient(regErr) && !IsAuthError(regErr) {
		// The user may already exist; a token for it is the real test.
		c.logger.Warn("Registration rejected, checking for existing user", zap.Error(regErr))
	} else if regErr != nil {
		return regErr
	}

	c.tokens.invalidate(loginName)
	if _, err := c.accessToken(ctx, loginName); err != nil {
		return fmt.Errorf("failed to obtain token after registration: %w", err)
	}
	return nil
}

// getWithAuth performs an authenticated GET for loginName.
func (c *Client) getWithAuth(ctx context.Context, op, loginName, path string, query url.Values, out any) error {
	return c.withAuthRetry(ctx, loginName, func(token string) error {
		return c.do(ctx, op, http.MethodGet, path, query, token, nil, "", out)
	})
}

// withAuthRetry runs call with a token for loginName. On an authorization
// failure the token is discarded, regenerated and the call retried once.
func (c *Client) withAuthRetry(ctx context.Context, loginName string, call func(token string) error) error {
	if loginName == "" {
		return &APIError{Op: "auth", Kind: KindAuth, Err: errors.New("missing login name")}
	}

	token, err := c.accessToken(ctx, loginName)
	if err != nil {
		return err
	}

	err = call(token)
	if err == nil || !IsAuthError(err) {
		return err
	}

	c.logger.Info("Access token rejected, refreshing once")
	c.tokens.invalidate(loginName)

	token, err = c.accessToken(ctx, loginName)
	if err != nil {
		return err
	}
	return call(token)
}

// accessToken returns a cached token for loginName or generates a new one.
// Concurrent refreshes for the same login name share one request.
func (c *Client) accessToken(ctx context.Context, loginName string) (string, error) {
	if tok, ok := c.tokens.get(loginName, c.now()); ok {
		return tok, nil
	}

	v, err, _ := c.refresh.Do(loginName, func() (any, error) {
		if tok, ok := c.tokens.get(loginName, c.now()); ok {
			return tok, nil
		}
		return c.generateToken(ctx, loginName)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) generateToken(ctx context.Context, loginName string) (string, error) {
	form := url.Values{}
	form.Set("clientId", c.clientID)
	form.Set("secret", c.secret)

	req, err := c.newRequest(ctx, http.MethodPost, authTokenPath, nil, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	req.Header.Set("loginName", loginName)

	var resp tokenResponse
	if err := c.send(ctx, "auth_token", req, &resp); err != nil {
		return "", err
	}
	if resp.Token.AccessToken == "" {
		return "", &APIError{Op: "auth_token", StatusCode: http.StatusOK, Kind: KindAuth, Err: errors.New("empty access token")}
	}

	ttl := defaultTokenTTL
	if resp.Token.ExpiresIn > 0 {
		ttl = time.Duration(resp.Token.ExpiresIn) * time.Second
	}
	if ttl > tokenRefreshMargin {
		ttl -= tokenRefreshMargin
	}
	c.tokens.put(loginName, resp.Token.AccessToken, c.now().Add(ttl))

	return resp.Token.AccessToken, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.send(ctx, op, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Version", apiVersion)
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// send executes req and decodes a 2xx body into out. Every failure is an *APIError.
func (c *Client) send(ctx context.Context, op string, req *http.Request, out any) error {
	ctx, span := clientTracer.Start(ctx, "yodlee."+op, trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("yodlee.operation", op),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.fail(span, &APIError{Op: op, Kind: KindTransient, Err: err})
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return c.fail(span, &APIError{Op: op, Kind: KindTransient, Err: fmt.Errorf("failed to execute request: %w", err)})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(span, &APIError{Op: op, StatusCode: resp.StatusCode, Kind: KindTransient, Err: fmt.Errorf("failed to read response body: %w", err)})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		apiErr := &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       errResp.ErrorCode,
			Message:    errResp.ErrorMessage,
			Reference:  errResp.ReferenceCode,
			Kind:       classify(resp.StatusCode, errResp.ErrorCode),
		}
		c.logger.Warn("Provider request failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("reference", apiErr.Reference),
		)
		return c.fail(span, apiErr)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(span, &APIError{Op: op, StatusCode: resp.StatusCode, Kind: KindRequest, Err: fmt.Errorf("failed to unmarshal response: %w", err)})
	}
	return nil
}

func (c *Client) fail(span trace.Span, err *APIError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
