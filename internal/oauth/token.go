package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrNoAccessToken = errors.New("token response missing access_token")

// Fetch performs a client-credentials grant and returns the issued token.
// The token is only held by the caller; nothing is persisted.
func Fetch(ctx context.Context, decl Declaration, creds Credentials, httpClient *http.Client) (*oauth2.Token, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     decl.TokenURL,
		Scopes:       strings.Fields(decl.Scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		tokenFailure.WithLabelValues(decl.Provider).Inc()
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return nil, fmt.Errorf("token request failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		// x/oauth2 rejects an empty access_token before handing the token back.
		if strings.Contains(err.Error(), "missing access_token") {
			return nil, fmt.Errorf("%w: %v", ErrNoAccessToken, err)
		}
		return nil, err
	}
	if token.AccessToken == "" {
		tokenFailure.WithLabelValues(decl.Provider).Inc()
		return nil, ErrNoAccessToken
	}

	tokenSuccess.WithLabelValues(decl.Provider).Inc()
	return token, nil
}
