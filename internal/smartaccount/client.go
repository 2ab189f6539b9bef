package smartaccount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joshp123/smartlicensing/internal/oauth"
	"github.com/joshp123/smartlicensing/internal/rate"
)

const (
	DefaultAuthURL = "https://cloudsso.cisco.com/as/token.oauth2"
	DefaultBaseURL = "https://swapi.cisco.com/services/api/smart-accounts-and-licensing/"

	accountsPath    = "v2/accounts/search"
	authRequestPath = "v2/devices/authrequest"
	pollPath        = "v2/accounts/poll"
	usagePath       = "v2/devices/reportusage"

	headerSmartAccount     = "X-CSW-SMART-ACCOUNT-ID"
	headerVirtualAccount   = "X-CSW-VIRTUAL-ACCOUNT-ID"
	headerRequestingSystem = "X-CSW-REQUESTING-SYSTEM"

	providerName = "smartlicensing"
)

// Config defines runtime configuration for the smart licensing client.
type Config struct {
	AuthURL string
	BaseURL string

	ClientID     string
	ClientSecret string

	SmartAccount   string
	VirtualAccount string
	Device         Device

	Poll PollOptions

	// RatePerMinute caps API calls; zero disables the guard.
	RatePerMinute int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the smart licensing REST API. One Client serves one run:
// it owns the nonce, the bearer token and the resolved account headers.
type Client struct {
	authURL string
	baseURL string
	creds   oauth.Credentials

	smartAccount   string
	virtualAccount string
	device         Device
	poll           PollOptions

	tokenClient *http.Client
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	nonce         string
	accessToken   string
	accounts      *AccountIDs
	deviceHeaders http.Header
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SmartAccount) == "" {
		return nil, fmt.Errorf("smart account name is required")
	}
	if strings.TrimSpace(cfg.VirtualAccount) == "" {
		return nil, fmt.Errorf("virtual account name is required")
	}
	if cfg.Device.PID == "" || cfg.Device.Serial == "" {
		return nil, fmt.Errorf("device pid and serial are required")
	}

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	decl := rate.Provider(providerName).ReadHeaders(rate.StandardHeaders())
	if cfg.RatePerMinute > 0 {
		decl = decl.MaxRequestsPer(rate.Minute, cfg.RatePerMinute)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		authURL:        authURL,
		baseURL:        baseURL,
		creds:          oauth.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		smartAccount:   cfg.SmartAccount,
		virtualAccount: cfg.VirtualAccount,
		device:         cfg.Device,
		poll:           cfg.Poll.withDefaults(),
		tokenClient:    base,
		httpClient:     rate.WrapHTTP(decl, base),
		logger:         logger,
		now:            time.Now,
		sleep:          sleepContext,
		nonce:          nonce,
	}, nil
}

// Nonce returns the per-run nonce sent in every request envelope.
func (c *Client) Nonce() string {
	return c.nonce
}

// Authenticate exchanges the client credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.logger.Info("sending authentication request", "url", c.authURL)
	token, err := oauth.Fetch(ctx, oauth.Declaration{Provider: providerName, TokenURL: c.authURL}, c.creds, c.tokenClient)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	c.accessToken = token.AccessToken
	c.logger.Info("got auth token")
	return nil
}

// ResolveAccountIDs looks up the configured smart and virtual accounts and
// computes the device header set used by every device-specific call.
func (c *Client) ResolveAccountIDs(ctx context.Context) (AccountIDs, error) {
	var resp accountsResponse
	if err := c.getJSON(ctx, accountsPath, &resp); err != nil {
		return AccountIDs{}, fmt.Errorf("account search: %w", err)
	}

	ids, err := selectAccount(resp, c.smartAccount, c.virtualAccount)
	if err != nil {
		return AccountIDs{}, err
	}
	c.logger.Info("resolved account ids", "smart_account_id", ids.SmartAccountID, "virtual_account_id", ids.VirtualAccountID)

	headers, err := deviceHeaders(ids, c.device)
	if err != nil {
		return AccountIDs{}, err
	}
	c.accounts = &ids
	c.deviceHeaders = headers
	return ids, nil
}

func selectAccount(resp accountsResponse, smartAccount, virtualAccount string) (AccountIDs, error) {
	for _, account := range resp.Accounts {
		if !strings.EqualFold(account.Domain, smartAccount) {
			continue
		}
		for _, va := range account.VirtualAccounts {
			if strings.EqualFold(va.Name, virtualAccount) {
				return AccountIDs{
					SmartAccountID:   string(account.AccountID),
					VirtualAccountID: string(va.VirtualAccountID),
				}, nil
			}
		}
		return AccountIDs{}, fmt.Errorf("%w: %q in smart account %q", ErrVirtualAccountNotFound, virtualAccount, account.Domain)
	}
	return AccountIDs{}, fmt.Errorf("%w: %q", ErrAccountNotFound, smartAccount)
}

func deviceHeaders(ids AccountIDs, device Device) (http.Header, error) {
	system, err := json.Marshal(device.sudi())
	if err != nil {
		return nil, fmt.Errorf("encode requesting system: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(headerSmartAccount, ids.SmartAccountID)
	headers.Set(headerVirtualAccount, ids.VirtualAccountID)
	headers.Set(headerRequestingSystem, string(system))
	return headers, nil
}

// SubmitAuthorization requests an offline authorization code for the
// entitlement and returns the poll id of the resulting task.
func (c *Client) SubmitAuthorization(ctx context.Context, device Device, entitlementTag string) (string, error) {
	if entitlementTag == "" {
		return "", fmt.Errorf("entitlement tag is required")
	}
	keys := []licenseKey{{Entitlement: entitlementTag, Count: "1"}}
	c.logger.Info("submitting license reservation request", "pid", device.PID, "serial", device.Serial)
	return c.submit(ctx, authRequestPath, c.authorizationEnvelope(device, keys, ""))
}

// SubmitRemoval returns the device's reservation using the removal code the
// device produced.
func (c *Client) SubmitRemoval(ctx context.Context, device Device, removalCode string) (string, error) {
	if strings.TrimSpace(removalCode) == "" {
		return "", fmt.Errorf("removal code is required")
	}
	c.logger.Info("submitting license removal request", "pid", device.PID, "serial", device.Serial)
	return c.submit(ctx, authRequestPath, c.authorizationEnvelope(device, nil, removalCode))
}

// SubmitUsageReport uploads usage reports. A FAILED submission returns a
// *SubmissionError and no poll id.
func (c *Client) SubmitUsageReport(ctx context.Context, reports []UsageReport, device Device) (string, error) {
	if len(reports) == 0 {
		return "", fmt.Errorf("no usage reports to submit")
	}
	c.logger.Info("submitting license usage report", "pid", device.PID, "serial", device.Serial, "reports", len(reports))
	return c.submit(ctx, usagePath, c.usageEnvelope(reports))
}

func (c *Client) submit(ctx context.Context, path string, payload any) (string, error) {
	body, err := c.postDevice(ctx, path, payload)
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}
	if strings.EqualFold(resp.Status, StatusFailed) {
		submissionFailures.WithLabelValues(path).Inc()
		return "", &SubmissionError{Message: resp.Message}
	}
	if resp.PollID == "" {
		return "", fmt.Errorf("%s response missing poll_id", path)
	}
	c.logger.Info("request submitted", "poll_id", resp.PollID)
	return resp.PollID, nil
}

func (c *Client) postDevice(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.deviceHeaders == nil {
		return nil, ErrAccountsUnresolved
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body), c.deviceHeaders)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, headers http.Header) ([]byte, error) {
	if c.accessToken == "" {
		return nil, ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(path, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	apiRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("request failed", "path", path, "status", resp.StatusCode, "body", strings.TrimSpace(string(data)))
		return nil, HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
