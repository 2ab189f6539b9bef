package workflow

import (
	"context"
	"fmt"

	"github.com/joshp123/smartlicensing/internal/artifact"
	"github.com/joshp123/smartlicensing/internal/smartaccount"
)

// Reserve requests an offline authorization code for the device and writes
// the decoded license to LicenseFile.
func (r *Runner) Reserve(ctx context.Context) error {
	event := r.newEvent(NameReserve)
	err := r.reserve(ctx, &event.PollID, &event.Artifact)
	r.finish(ctx, event, err)
	return err
}

func (r *Runner) reserve(ctx context.Context, pollID, written *string) error {
	if err := r.connect(ctx, 1); err != nil {
		return err
	}

	r.step(3, "Request License Authorization Code")
	id, err := r.API.SubmitAuthorization(ctx, r.Device, r.LicenseTag)
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
	auths, err := resp.Authorizations(smartaccount.ActionAuthorizations)
	if err != nil {
		return err
	}

	auth := auths[0]
	if auth.Failed() {
		r.printf("\nRequest failed. Error:\n%s\n", auth.StatusMessage)
		return fmt.Errorf("%w: %s", ErrRequestFailed, auth.StatusMessage)
	}

	license, err := artifact.Decode(auth.SmartLicense)
	if err != nil {
		return err
	}
	r.printf("\nLicense Data:\n%s\n", license)

	if err := r.Artifacts.Write(ctx, r.LicenseFile, license); err != nil {
		return err
	}
	*written = r.LicenseFile
	r.printf("\nLicense saved to: %s\n", r.LicenseFile)
	r.printf("\nPlease copy file to device & import with command: license smart import <bootflash|tftp>:%s\n", r.LicenseFile)
	r.printf("Then run: license smart save usage all file <bootflash|tftp>:<filename>\n")
	r.printf("And run report-usage to upload the usage report.\n")
	return nil
}
