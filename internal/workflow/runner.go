// Package workflow drives the reserve, report-usage and remove sequences
// against the smart licensing API.
package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshp123/smartlicensing/internal/artifact"
	"github.com/joshp123/smartlicensing/internal/notify"
	"github.com/joshp123/smartlicensing/internal/smartaccount"
)

const (
	NameReserve     = "reserve"
	NameReportUsage = "report-usage"
	NameRemove      = "remove"
)

var ErrRequestFailed = errors.New("license request failed")

// API is the part of the smart licensing client the workflows use.
type API interface {
	Authenticate(ctx context.Context) error
	ResolveAccountIDs(ctx context.Context) (smartaccount.AccountIDs, error)
	SubmitAuthorization(ctx context.Context, device smartaccount.Device, entitlementTag string) (string, error)
	SubmitRemoval(ctx context.Context, device smartaccount.Device, removalCode string) (string, error)
	SubmitUsageReport(ctx context.Context, reports []smartaccount.UsageReport, device smartaccount.Device) (string, error)
	Poll(ctx context.Context, pollID, action string) (*smartaccount.PollResponse, error)
}

// Runner holds what the three workflows share. Out receives operator-facing
// text; In supplies the interactive answers.
type Runner struct {
	API        API
	Device     smartaccount.Device
	LicenseTag string

	UsageFile   string
	LicenseFile string
	AckFile     string

	Artifacts artifact.Writer
	Events    notify.Publisher
	Out       io.Writer
	In        io.Reader
	Logger    *slog.Logger
	RunID     string

	input *bufio.Reader
}

func (r *Runner) step(n int, title string) {
	fmt.Fprintf(r.Out, "\n[Step %d] %s\n", n, title)
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.Out, format, args...)
}

// prompt reads one line. EOF after partial input is not an error.
func (r *Runner) prompt(label string) (string, error) {
	if r.In == nil {
		return "", fmt.Errorf("no input available for prompt %q", label)
	}
	if r.input == nil {
		r.input = bufio.NewReader(r.In)
	}
	r.printf("%s", label)
	line, err := r.input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// connect authenticates and resolves account ids; every device-specific
// call depends on it having succeeded.
func (r *Runner) connect(ctx context.Context, first int) error {
	r.step(first, "Authenticate to Cisco SSO")
	if err := r.API.Authenticate(ctx); err != nil {
		return err
	}
	r.printf("Got auth token\n")

	r.step(first+1, "Locate Smart Account & Virtual Account IDs")
	ids, err := r.API.ResolveAccountIDs(ctx)
	if err != nil {
		return err
	}
	r.printf("Found SA ID: %s\nFound VA ID: %s\n", ids.SmartAccountID, ids.VirtualAccountID)
	return nil
}

func (r *Runner) newEvent(workflow string) notify.Event {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	return notify.Event{
		RunID:    r.RunID,
		Workflow: workflow,
		PID:      r.Device.PID,
		Serial:   r.Device.Serial,
		Hostname: r.Device.Hostname,
	}
}

func (r *Runner) finish(ctx context.Context, event notify.Event, err error) {
	event.Status = notify.StatusSucceeded
	if err != nil {
		event.Status = notify.StatusFailed
		event.Message = err.Error()
	}
	event.FinishedAt = time.Now().UTC()
	runs.WithLabelValues(event.Workflow, event.Status).Inc()

	logger := r.logger()
	if err != nil {
		logger.Error("workflow failed", "workflow", event.Workflow, "run_id", event.RunID, "err", err)
	} else {
		logger.Info("workflow finished", "workflow", event.Workflow, "run_id", event.RunID)
	}

	if r.Events == nil {
		return
	}
	if pubErr := r.Events.Publish(ctx, event); pubErr != nil {
		logger.Warn("publish workflow event failed", "workflow", event.Workflow, "err", pubErr)
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
