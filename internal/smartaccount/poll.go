package smartaccount

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusComplete   = "COMPLETE"
	StatusInProgress = "OK_POLL"
	StatusFailed     = "FAILED"

	ActionAuthorizations   = "authorizations"
	ActionAcknowledgements = "acknowledgements"

	DefaultPollInterval = 3 * time.Second
	DefaultPollWarmup   = 27 * time.Second
	DefaultMaxAttempts  = 200
)

// PollOptions bounds the poll loop. MaxAttempts of zero means
// DefaultMaxAttempts unless Unbounded is set. A negative Warmup disables the
// acknowledgement warm-up.
type PollOptions struct {
	Interval    time.Duration
	Warmup      time.Duration
	MaxAttempts int
	Unbounded   bool
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Warmup == 0 {
		o.Warmup = DefaultPollWarmup
	}
	if o.MaxAttempts <= 0 && !o.Unbounded {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// PollResponse is a completed poll. Raw holds the response body exactly as
// received.
type PollResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	MessageCode *flexString     `json:"message_code"`
	Data        json.RawMessage `json:"data"`

	Raw      []byte `json:"-"`
	Attempts int    `json:"-"`
}

// Authorizations decodes data.<action> from a completed poll.
func (r *PollResponse) Authorizations(action string) ([]Authorization, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("decode poll data: %w", err)
	}
	raw, ok := data[action]
	if !ok {
		return nil, fmt.Errorf("poll data missing %q", action)
	}
	var out []Authorization
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", action, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("poll data has no %s", action)
	}
	return out, nil
}

// Poll repeats the poll request for pollID until the task completes, the API
// reports an error message, the attempt budget runs out or ctx is done.
func (c *Client) Poll(ctx context.Context, pollID, action string) (*PollResponse, error) {
	return c.PollWithOptions(ctx, pollID, action, c.poll)
}

func (c *Client) PollWithOptions(ctx context.Context, pollID, action string, opts PollOptions) (*PollResponse, error) {
	opts = opts.withDefaults()
	payload := c.pollEnvelope(pollID, action)

	c.logger.Info("checking task status", "poll_id", pollID, "action", action)
	if action == ActionAcknowledgements && opts.Warmup > 0 {
		c.logger.Info("reports take a while to process; waiting before first poll", "wait", opts.Warmup)
		if err := c.sleep(ctx, opts.Warmup); err != nil {
			return nil, err
		}
	}

	for attempt := 1; opts.Unbounded || attempt <= opts.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}

		body, err := c.postDevice(ctx, pollPath, payload)
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", pollID, err)
		}
		pollAttempts.WithLabelValues(action).Inc()

		var resp PollResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode poll response: %w", err)
		}
		resp.Raw = body
		resp.Attempts = attempt

		switch {
		case resp.Status == StatusComplete:
			c.logger.Info("task completed", "poll_id", pollID, "attempts", attempt)
			return &resp, nil
		case resp.Status == StatusInProgress && resp.Message == "":
			c.logger.Info("task not completed yet", "poll_id", pollID, "attempt", attempt)
		default:
			pollErr := &PollError{PollID: pollID, Status: resp.Status, Message: resp.Message}
			if resp.MessageCode != nil {
				pollErr.Code = string(*resp.MessageCode)
			}
			return nil, pollErr
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrPollAttemptsExhausted, pollID, opts.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
