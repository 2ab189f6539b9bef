package workflow

import (
	"context"
	"errors"

	"github.com/joshp123/smartlicensing/internal/artifact"
	"github.com/joshp123/smartlicensing/internal/smartaccount"
	"github.com/joshp123/smartlicensing/internal/usage"
)

// ReportUsage uploads the staged usage report and writes the returned
// acknowledgement to AckFile.
func (r *Runner) ReportUsage(ctx context.Context) error {
	event := r.newEvent(NameReportUsage)
	err := r.reportUsage(ctx, &event.PollID, &event.Artifact)
	r.finish(ctx, event, err)
	return err
}

func (r *Runner) reportUsage(ctx context.Context, pollID, written *string) error {
	r.step(1, "Parse XML usage report")
	r.printf("Please ensure the usage report is saved as: %s\n", r.UsageFile)
	if _, err := r.prompt("Press Enter when file is ready."); err != nil {
		return err
	}
	entries, err := usage.ParseFile(r.UsageFile, r.LicenseTag)
	if err != nil {
		return err
	}
	r.printf("\nFound %d items to upload.\n", len(entries))

	if err := r.connect(ctx, 2); err != nil {
		return err
	}

	r.step(4, "Upload License Usage Report")
	id, err := r.API.SubmitUsageReport(ctx, usage.Reports(r.Device, entries), r.Device)
	if err != nil {
		var submitErr *smartaccount.SubmissionError
		if errors.As(err, &submitErr) {
			r.printf("Request failed:\n%s\n", submitErr.Message)
		}
		return err
	}
	*pollID = id
	r.printf("Request submitted. Poll ID: %s\n", id)

	r.step(5, "Check Request Status")
	resp, err := r.API.Poll(ctx, id, smartaccount.ActionAcknowledgements)
	if err != nil {
		return err
	}
	acks, err := resp.Authorizations(smartaccount.ActionAcknowledgements)
	if err != nil {
		return err
	}

	ack, err := artifact.Decode(acks[0].SmartLicense)
	if err != nil {
		return err
	}
	r.printf("\nLicense ACK Data:\n%s\n", ack)

	if err := r.Artifacts.Write(ctx, r.AckFile, ack); err != nil {
		return err
	}
	*written = r.AckFile
	r.printf("\nACK saved to: %s\n", r.AckFile)
	r.printf("\nPlease copy file to device & import with command: license smart import <bootflash|tftp>:%s\n", r.AckFile)
	return nil
}
