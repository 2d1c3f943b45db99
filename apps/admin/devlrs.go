package main

import (
	"fmt"

	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/lrstest"
)

// devlrs runs a local record store for frontend and client development. Data
// lives in memory and dies with the process.
func (cli *commandLine) devlrs(addr string) error {
	fake := lrstest.NewServer(cli.conf.LRS.Username, cli.conf.LRS.Password, cli.conf.LRS.Secret)
	fmt.Fprintf(cli.out, "dev record store listening on %s (username %q)\n", addr, cli.conf.LRS.Username)
	return fake.Start(addr)
}
