// Package usage extracts signed license usage entries from the XML report a
// device writes with "license smart save usage".
package usage

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joshp123/smartlicensing/internal/smartaccount"
)

var ErrNoMatchingUsage = errors.New("no usage entries match entitlement tag")

type document struct {
	Reports []string `xml:"RUMReport"`
}

type signedItem struct {
	Payload   string          `json:"payload"`
	Signature json.RawMessage `json:"signature"`
}

type payloadMeta struct {
	Meta struct {
		EntitlementTag string `json:"entitlement_tag"`
	} `json:"meta"`
}

// ParseFile reads the usage report at path. See Parse.
func ParseFile(path, entitlementTag string) ([]smartaccount.UsageEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open usage report: %w", err)
	}
	defer f.Close()
	return Parse(f, entitlementTag)
}

// Parse returns the entries whose payload carries entitlementTag. Payloads
// are re-serialized as compact JSON; the API checks them byte for byte
// against the device signature.
func Parse(r io.Reader, entitlementTag string) ([]smartaccount.UsageEntry, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse usage report: %w", err)
	}

	var entries []smartaccount.UsageEntry
	for i, text := range doc.Reports {
		var item signedItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("report %d: decode item: %w", i, err)
		}
		var meta payloadMeta
		if err := json.Unmarshal([]byte(item.Payload), &meta); err != nil {
			return nil, fmt.Errorf("report %d: decode payload: %w", i, err)
		}
		if meta.Meta.EntitlementTag != entitlementTag {
			continue
		}
		payload, err := Compact(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		entries = append(entries, smartaccount.UsageEntry{
			Payload:   payload,
			Signature: item.Signature,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoMatchingUsage, entitlementTag)
	}
	return entries, nil
}

// Compact strips insignificant whitespace from a JSON document while keeping
// key order and escapes exactly as the device wrote them.
func Compact(payload string) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(payload)); err != nil {
		return "", fmt.Errorf("compact payload: %w", err)
	}
	return buf.String(), nil
}

// Reports wraps entries into the single-device report list the API expects.
func Reports(device smartaccount.Device, entries []smartaccount.UsageEntry) []smartaccount.UsageReport {
	return []smartaccount.UsageReport{{
		Sudi:  smartaccount.Sudi{PID: device.PID, Serial: device.Serial},
		Usage: entries,
	}}
}
