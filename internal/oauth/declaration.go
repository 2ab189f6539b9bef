package oauth

import "fmt"

// Declaration describes the token endpoint a client authenticates against.
type Declaration struct {
	Provider string
	TokenURL string
	Scope    string
}

// Credentials are the client id/secret pair exchanged for a bearer token.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (d Declaration) Validate() error {
	if d.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if d.TokenURL == "" {
		return fmt.Errorf("tokenURL is required")
	}
	return nil
}

func (c Credentials) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("credentials missing client_id")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("credentials missing client_secret")
	}
	return nil
}
