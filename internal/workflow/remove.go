package workflow

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/joshp123/smartlicensing/internal/smartaccount"
)

// Remove returns the device's license reservation using the removal code the
// operator collects from the device.
func (r *Runner) Remove(ctx context.Context) error {
	event := r.newEvent(NameRemove)
	err := r.remove(ctx, &event.PollID)
	r.finish(ctx, event, err)
	return err
}

func (r *Runner) remove(ctx context.Context, pollID *string) error {
	r.printf("\nTo remove a device license reservation, we need a device removal code.\n")
	r.printf("This can be collected from the device with the following command:\n")
	r.printf("router# license smart authorization return local online\n")
	r.printf("\nPlease enter device removal code:\n")
	code, err := r.prompt("> ")
	if err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("removal code is required")
	}

	if err := r.connect(ctx, 1); err != nil {
		return err
	}

	r.step(3, "Send License Removal Request")
	id, err := r.API.SubmitRemoval(ctx, r.Device, code)
	if err != nil {
		return err
	}
	*pollID = id
	r.printf("Request submitted. Poll ID: %s\n", id)

	r.step(4, "Check Request Status")
	resp, err := r.API.Poll(ctx, id, smartaccount.ActionAuthorizations)
	if err != nil {
		return err
	}
	devices, err := resp.Authorizations(smartaccount.ActionAuthorizations)
	if err != nil {
		return err
	}

	r.printf("%s\n", renderRemoval(devices))

	var failed int
	for _, device := range devices {
		if device.ErrorCode != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d devices reported an error", ErrRequestFailed, failed, len(devices))
	}
	return nil
}

var removalHeader = table.Row{
	"Device",
	"SN",
	"Status",
	"Error",
}

func renderRemoval(devices []smartaccount.Authorization) string {
	t := table.NewWriter()
	t.AppendHeader(removalHeader)
	for _, device := range devices {
		row := table.Row{device.Sudi.PID, device.Sudi.Serial}
		if device.ErrorCode == nil {
			row = append(row, device.Status, "")
		} else {
			row = append(row, device.Status, fmt.Sprintf("%s - %s", device.Code(), device.StatusMessage))
		}
		t.AppendRow(row)
	}
	return t.Render()
}
