package smartaccount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Device identifies the licensed device on every request.
type Device struct {
	PID      string
	Serial   string
	Hostname string
}

func (d Device) sudi() Sudi {
	return Sudi{PID: d.PID, Serial: d.Serial}
}

// Sudi is the secure unique device identifier block used on the wire.
type Sudi struct {
	PID    string `json:"udi_pid"`
	Serial string `json:"udi_serial_number"`
}

// AccountIDs are the resolved smart/virtual account identifiers.
type AccountIDs struct {
	SmartAccountID   string
	VirtualAccountID string
}

// UsageReport is one device's usage upload.
type UsageReport struct {
	Sudi  Sudi         `json:"sudi"`
	Usage []UsageEntry `json:"usage"`
}

// UsageEntry pairs a compact payload with the device signature over it.
type UsageEntry struct {
	Payload   string          `json:"payload"`
	Signature json.RawMessage `json:"signature"`
}

// Authorization is one entry of a completed authorization or
// acknowledgement poll.
type Authorization struct {
	Sudi          Sudi        `json:"sudi"`
	Status        string      `json:"status"`
	StatusMessage string      `json:"status_message"`
	ErrorCode     *flexString `json:"error_code"`
	SmartLicense  string      `json:"smart_license"`
}

func (a Authorization) Failed() bool {
	return strings.EqualFold(a.Status, StatusFailed)
}

func (a Authorization) Code() string {
	if a.ErrorCode == nil {
		return ""
	}
	return string(*a.ErrorCode)
}

// flexString accepts both JSON strings and numbers; the API is not
// consistent about identifier types.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

type accountsResponse struct {
	Accounts []struct {
		AccountID       flexString `json:"account_id"`
		Domain          string     `json:"domain"`
		VirtualAccounts []struct {
			VirtualAccountID flexString `json:"virtual_account_id"`
			Name             string     `json:"name"`
		} `json:"virtual_accounts"`
	} `json:"accounts"`
}

type submitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	PollID  string `json:"poll_id"`
}
