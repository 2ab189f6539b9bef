package smartaccount

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	nonceLength   = 16
	nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewNonce returns a random 16 character alphanumeric string.
func NewNonce() (string, error) {
	limit := big.NewInt(int64(len(nonceAlphabet)))
	out := make([]byte, nonceLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate nonce: %w", err)
		}
		out[i] = nonceAlphabet[n.Int64()]
	}
	return string(out), nil
}

func timestampMillis(now time.Time) int64 {
	return now.UnixMilli()
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type licenseKey struct {
	Entitlement string `json:"entitlement"`
	Count       string `json:"count"`
}

type licenseRequest struct {
	Sudi       Sudi         `json:"sudi"`
	Hostname   string       `json:"hostname"`
	Keys       []licenseKey `json:"keys"`
	RemoveCode string       `json:"remove_code,omitempty"`
}

type authRequestData struct {
	Timestamp int64            `json:"timestamp"`
	Nonce     string           `json:"nonce"`
	Licenses  []licenseRequest `json:"licenses"`
}

type usageRequestData struct {
	Timestamp int64         `json:"timestamp"`
	Nonce     string        `json:"nonce"`
	Reports   []UsageReport `json:"reports"`
}

// The poll endpoint takes the timestamp as a string.
type pollRequestData struct {
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
	PollID    string `json:"poll_id"`
	Action    string `json:"action"`
}

func (c *Client) authorizationEnvelope(device Device, keys []licenseKey, removeCode string) envelope[authRequestData] {
	if keys == nil {
		keys = []licenseKey{}
	}
	return envelope[authRequestData]{Data: authRequestData{
		Timestamp: timestampMillis(c.now()),
		Nonce:     c.nonce,
		Licenses: []licenseRequest{{
			Sudi:       device.sudi(),
			Hostname:   device.Hostname,
			Keys:       keys,
			RemoveCode: removeCode,
		}},
	}}
}

func (c *Client) usageEnvelope(reports []UsageReport) envelope[usageRequestData] {
	return envelope[usageRequestData]{Data: usageRequestData{
		Timestamp: timestampMillis(c.now()),
		Nonce:     c.nonce,
		Reports:   reports,
	}}
}

func (c *Client) pollEnvelope(pollID, action string) envelope[pollRequestData] {
	return envelope[pollRequestData]{Data: pollRequestData{
		Timestamp: strconv.FormatInt(timestampMillis(c.now()), 10),
		Nonce:     c.nonce,
		PollID:    pollID,
		Action:    action,
	}}
}
