package main

import (
	"context"
	"fmt"

	"github.com/xiangenhu/polyuhulab-sub000/core/analytics"
)

func (cli *commandLine) overview(subject, preset string) error {
	aggr := analytics.NewAggregator(cli.conf, cli.client, cli.logger)

	payload, err := aggr.Overview(context.Background(), subject, analytics.Preset(preset))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s\n", payload)
	return nil
}
