package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
	client   xapi.Client // built on first use; pre-set in tests
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  ping - check record store connectivity and latency")
	fmt.Fprintln(cli.out, "  seed -actor EMAIL [-projects N] [-days N] - write demo projects and activity")
	fmt.Fprintln(cli.out, "  overview [-preset PRESET] [-subject EMAIL] - print portal analytics as JSON")
	fmt.Fprintln(cli.out, "  devlrs [-addr ADDR] - run a local dev record store")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedActor := seedCmd.String("actor", "", "The email the demo data is seeded as.")
	seedProjects := seedCmd.Int("projects", 3, "Number of demo projects to create.")
	seedDays := seedCmd.Int("days", 7, "Number of days to spread the demo activity over.")

	overviewCmd := flag.NewFlagSet("overview", flag.ExitOnError)
	overviewPreset := overviewCmd.String("preset", "", "Time range preset: today, yesterday, week, month, last7days or last30days.")
	overviewSubject := overviewCmd.String("subject", "", "Scope the overview to one user's email.")

	devlrsCmd := flag.NewFlagSet("devlrs", flag.ExitOnError)
	devlrsAddr := devlrsCmd.String("addr", ":8085", "Address for the dev record store to listen on.")

	switch args[1] {
	case "ping":
		if err := cli.ensureClient(); err != nil {
			return err
		}
		return cli.ping()
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedActor == "" || *seedProjects < 1 || *seedDays < 1 {
			seedCmd.Usage()
			return errHelp
		}
		if err := cli.ensureClient(); err != nil {
			return err
		}
		return cli.seed(*seedActor, *seedProjects, *seedDays)
	case "overview":
		if err := overviewCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := cli.ensureClient(); err != nil {
			return err
		}
		return cli.overview(*overviewSubject, *overviewPreset)
	case "devlrs":
		if err := devlrsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.devlrs(*devlrsAddr)
	default:
		cli.printUsage()
		return errHelp
	}
}

// ensureClient builds the record store client on first use, prompting for
// the basic auth password when the config leaves it empty.
func (cli *commandLine) ensureClient() error {
	if cli.client != nil {
		return nil
	}
	if cli.conf.LRS.AuthScheme == "basic" && cli.conf.LRS.Password == "" {
		fmt.Print("Enter LRS password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			return errHelp
		}
		cli.conf.LRS.Password = string(pwd)
	}
	cli.client = lrs.NewClient(cli.conf, cli.logger)
	return nil
}
