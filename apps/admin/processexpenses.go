package main

import (
	"context"
)

// processExpenses rolls forward every due recurring expense template.
// Meant to be run from a cron entry.
func (cli *commandLine) processExpenses() error {
	res, err := cli.finSvc.ProcessRecurringExpenses(context.Background())
	if err != nil {
		return err
	}
	logger.Println(res.Message)
	return nil
}
