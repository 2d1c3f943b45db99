package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), cli.conf.LRS.Timeout)
	defer cancel()

	start := time.Now()
	if err := cli.client.About(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "record store at %s is up (%s)\n",
		cli.conf.LRS.Endpoint, time.Since(start).Round(time.Millisecond))
	return nil
}
