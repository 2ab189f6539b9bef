package smartaccount

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsFixture = `{"accounts":[
	{"account_id":"111","domain":"other","virtual_accounts":[{"virtual_account_id":"911","name":"Default"}]},
	{"account_id":222,"domain":"acme","virtual_accounts":[
		{"virtual_account_id":"800","name":"Lab"},
		{"virtual_account_id":801,"name":"Default"}
	]}
]}`

var testDevice = Device{PID: "C8300-1N1S-4T2X", Serial: "FDO1234ABCD", Hostname: "edge-1"}

// fakeAPI records every request body sent to the licensing endpoints.
type fakeAPI struct {
	t *testing.T

	mu       sync.Mutex
	bodies   map[string][]string
	headers  map[string][]http.Header
	accounts string
	submit   string
	polls    []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:        t,
		bodies:   make(map[string][]string),
		headers:  make(map[string][]http.Header),
		accounts: accountsFixture,
		submit:   `{"status":"OK","message":"","poll_id":"poll-1"}`,
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], string(body))
	f.headers[r.URL.Path] = append(f.headers[r.URL.Path], r.Header.Clone())

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/token":
		_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
	case "/api/v2/accounts/search":
		assertAuth(f.t, r)
		_, _ = io.WriteString(w, f.accounts)
	case "/api/v2/devices/authrequest", "/api/v2/devices/reportusage":
		assertAuth(f.t, r)
		_, _ = io.WriteString(w, f.submit)
	case "/api/v2/accounts/poll":
		assertAuth(f.t, r)
		if len(f.polls) == 0 {
			f.t.Errorf("unexpected poll request")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		next := f.polls[0]
		f.polls = f.polls[1:]
		_, _ = io.WriteString(w, next)
	default:
		f.t.Errorf("unexpected path: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies[path])
}

func (f *fakeAPI) body(path string, i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path][i]
}

func assertAuth(t *testing.T, r *http.Request) {
	t.Helper()
	if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
		t.Errorf("unexpected auth header: %s", auth)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) (*Client, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		AuthURL:        server.URL + "/token",
		BaseURL:        server.URL + "/api",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		SmartAccount:   "ACME",
		VirtualAccount: "Default",
		Device:         testDevice,
		HTTPClient:     server.Client(),
	})
	require.NoError(t, err)

	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return client, &slept
}

func readyClient(t *testing.T, api *fakeAPI) (*Client, *[]time.Duration) {
	t.Helper()
	client, slept := newTestClient(t, api)
	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))
	_, err := client.ResolveAccountIDs(ctx)
	require.NoError(t, err)
	return client, slept
}

func TestNewNonce(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{16}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		nonce, err := NewNonce()
		require.NoError(t, err)
		assert.Regexp(t, pattern, nonce)
		seen[nonce] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestNonceReusedAcrossRequests(t *testing.T) {
	api := newFakeAPI(t)
	api.polls = []string{`{"status":"COMPLETE","message":"","data":{"authorizations":[]}}`}
	client, _ := readyClient(t, api)
	ctx := context.Background()

	_, err := client.SubmitAuthorization(ctx, testDevice, "hseck9")
	require.NoError(t, err)
	_, err = client.SubmitRemoval(ctx, testDevice, "remove-me")
	require.NoError(t, err)
	_, err = client.Poll(ctx, "poll-1", ActionAuthorizations)
	require.NoError(t, err)

	var nonces []string
	for _, path := range []string{"/api/v2/devices/authrequest", "/api/v2/accounts/poll"} {
		for i := 0; i < api.count(path); i++ {
			var env struct {
				Data struct {
					Nonce string `json:"nonce"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(api.body(path, i)), &env))
			nonces = append(nonces, env.Data.Nonce)
		}
	}
	require.Len(t, nonces, 3)
	for _, nonce := range nonces {
		assert.Equal(t, client.Nonce(), nonce)
	}
}

func TestResolveAccountIDs(t *testing.T) {
	t.Run("matches names case-insensitively", func(t *testing.T) {
		api := newFakeAPI(t)
		client, _ := newTestClient(t, api)
		ctx := context.Background()
		require.NoError(t, client.Authenticate(ctx))

		ids, err := client.ResolveAccountIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, AccountIDs{SmartAccountID: "222", VirtualAccountID: "801"}, ids)

		_, err = client.SubmitAuthorization(ctx, testDevice, "hseck9")
		require.NoError(t, err)

		api.mu.Lock()
		header := api.headers["/api/v2/devices/authrequest"][0]
		api.mu.Unlock()
		assert.Equal(t, "application/json", header.Get("Content-Type"))
		assert.Equal(t, "222", header.Get("X-CSW-SMART-ACCOUNT-ID"))
		assert.Equal(t, "801", header.Get("X-CSW-VIRTUAL-ACCOUNT-ID"))
		assert.JSONEq(t, `{"udi_pid":"C8300-1N1S-4T2X","udi_serial_number":"FDO1234ABCD"}`, header.Get("X-CSW-REQUESTING-SYSTEM"))
	})

	t.Run("unknown smart account", func(t *testing.T) {
		api := newFakeAPI(t)
		api.accounts = `{"accounts":[{"account_id":"1","domain":"other","virtual_accounts":[]}]}`
		client, _ := newTestClient(t, api)
		ctx := context.Background()
		require.NoError(t, client.Authenticate(ctx))

		_, err := client.ResolveAccountIDs(ctx)
		require.ErrorIs(t, err, ErrAccountNotFound)

		_, err = client.SubmitAuthorization(ctx, testDevice, "hseck9")
		require.ErrorIs(t, err, ErrAccountsUnresolved)
		assert.Zero(t, api.count("/api/v2/devices/authrequest"))
	})

	t.Run("unknown virtual account", func(t *testing.T) {
		api := newFakeAPI(t)
		api.accounts = `{"accounts":[{"account_id":"1","domain":"acme","virtual_accounts":[{"virtual_account_id":"2","name":"Lab"}]}]}`
		client, _ := newTestClient(t, api)
		ctx := context.Background()
		require.NoError(t, client.Authenticate(ctx))

		_, err := client.ResolveAccountIDs(ctx)
		require.ErrorIs(t, err, ErrVirtualAccountNotFound)
	})
}

func TestRequestsRequireAuthentication(t *testing.T) {
	api := newFakeAPI(t)
	client, _ := newTestClient(t, api)

	_, err := client.ResolveAccountIDs(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, api.count("/api/v2/accounts/search"))
}

func TestSubmitAuthorizationEnvelope(t *testing.T) {
	api := newFakeAPI(t)
	client, _ := readyClient(t, api)

	pollID, err := client.SubmitAuthorization(context.Background(), testDevice, "hseck9")
	require.NoError(t, err)
	assert.Equal(t, "poll-1", pollID)

	var env struct {
		Data struct {
			Timestamp int64  `json:"timestamp"`
			Nonce     string `json:"nonce"`
			Licenses  []struct {
				Sudi     Sudi   `json:"sudi"`
				Hostname string `json:"hostname"`
				Keys     []struct {
					Entitlement string `json:"entitlement"`
					Count       string `json:"count"`
				} `json:"keys"`
			} `json:"licenses"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.body("/api/v2/devices/authrequest", 0)), &env))
	assert.InDelta(t, time.Now().UnixMilli(), env.Data.Timestamp, float64(time.Minute.Milliseconds()))
	require.Len(t, env.Data.Licenses, 1)
	license := env.Data.Licenses[0]
	assert.Equal(t, Sudi{PID: testDevice.PID, Serial: testDevice.Serial}, license.Sudi)
	assert.Equal(t, "edge-1", license.Hostname)
	require.Len(t, license.Keys, 1)
	assert.Equal(t, "hseck9", license.Keys[0].Entitlement)
	assert.Equal(t, "1", license.Keys[0].Count)
}

func TestSubmitRemovalEnvelope(t *testing.T) {
	api := newFakeAPI(t)
	client, _ := readyClient(t, api)

	_, err := client.SubmitRemoval(context.Background(), testDevice, "UDI_PID:C8300;RC:abc")
	require.NoError(t, err)

	var env struct {
		Data struct {
			Licenses []map[string]json.RawMessage `json:"licenses"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.body("/api/v2/devices/authrequest", 0)), &env))
	require.Len(t, env.Data.Licenses, 1)
	assert.JSONEq(t, `[]`, string(env.Data.Licenses[0]["keys"]))
	assert.JSONEq(t, `"UDI_PID:C8300;RC:abc"`, string(env.Data.Licenses[0]["remove_code"]))

	_, err = client.SubmitRemoval(context.Background(), testDevice, "  ")
	require.Error(t, err)
}

func TestSubmitUsageReportFailed(t *testing.T) {
	api := newFakeAPI(t)
	api.submit = `{"status":"FAILED","message":"duplicate"}`
	client, _ := readyClient(t, api)

	reports := []UsageReport{{
		Sudi:  testDevice.sudi(),
		Usage: []UsageEntry{{Payload: `{"a":1}`, Signature: json.RawMessage(`{"sig":"x"}`)}},
	}}
	pollID, err := client.SubmitUsageReport(context.Background(), reports, testDevice)

	assert.Empty(t, pollID)
	var submitErr *SubmissionError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, "duplicate", submitErr.Message)
	assert.Zero(t, api.count("/api/v2/accounts/poll"))

	var env struct {
		Data struct {
			Reports []UsageReport `json:"reports"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.body("/api/v2/devices/reportusage", 0)), &env))
	assert.Equal(t, reports[0].Usage[0].Payload, env.Data.Reports[0].Usage[0].Payload)
}

func TestHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"Bearer"}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "forbidden")
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		AuthURL:        server.URL + "/token",
		BaseURL:        server.URL,
		ClientID:       "id",
		ClientSecret:   "secret",
		SmartAccount:   "acme",
		VirtualAccount: "Default",
		Device:         testDevice,
		HTTPClient:     server.Client(),
	})
	require.NoError(t, err)
	require.NoError(t, client.Authenticate(context.Background()))

	_, err = client.ResolveAccountIDs(context.Background())
	var statusErr HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Status)
	assert.Equal(t, "forbidden", statusErr.Body)
}
