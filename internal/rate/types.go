package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Headers describes provider-specific rate limit headers.
type Headers struct {
	RemainingMinute string
	RetryAfter      string
}

// StandardHeaders returns the header mapping most gateways emit.
func StandardHeaders() Headers {
	return Headers{
		RemainingMinute: "X-RateLimit-Remaining",
		RetryAfter:      "Retry-After",
	}
}

// Declaration defines a provider's rate limits and header mapping.
type Declaration struct {
	provider string
	limits   map[Window]int
	headers  Headers
	maxWait  time.Duration
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

// WaitAtMost bounds how long a request may be held back before the guard
// gives up with a RateLimitError.
func (d Declaration) WaitAtMost(max time.Duration) Declaration {
	d.maxWait = max
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) Headers() Headers {
	return d.headers
}

func (d Declaration) MaxWait() time.Duration {
	return d.maxWait
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}
