package main

import (
	"context"
)

// sweepOverdue persists the Overdue status on open past-due issue records.
// Meant to be run nightly from cron.
func (cli *commandLine) sweepOverdue() error {
	flipped, err := cli.libSvc.SweepOverdue(context.Background())
	if err != nil {
		return err
	}
	logger.Printf("%d issue record(s) marked Overdue", flipped)
	return nil
}
