package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/analytics"
	"github.com/xiangenhu/polyuhulab-sub000/core/profile"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/inmem"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/lrstest"
	testutil "github.com/xiangenhu/polyuhulab-sub000/tests"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "HuLab",
		LRS: core.LRSConfig{
			Endpoint:   "http://localhost:8085/xapi",
			AuthScheme: "basic",
			Username:   "hulab",
			Password:   "s3cret",
			Timeout:    5 * time.Second,
			MaxRetries: 1,
			PageSize:   50,
		},
		Analytics: core.AnalyticsConfig{CacheTTL: time.Minute, MaxScan: 1000},
	}
}

func setup(t *testing.T) (*commandLine, *inmem.Store, *bytes.Buffer) {
	store := inmem.NewStore()
	validate, _ := testutil.NewValidator(profile.InitValidators)
	out := new(bytes.Buffer)

	cli := &commandLine{
		conf:     testConfig(),
		logger:   testutil.NewLogger(t),
		validate: validate,
		client:   store,
		out:      out,
	}
	return cli, store, out
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
}

func Test_commandLine_run(t *testing.T) {
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "seed: no actor", args: []string{"seed"}, wantErr: errHelp},
		{name: "seed: bad project count", args: []string{"seed", "-actor", "t@test.cd", "-projects", "0"}, wantErr: errHelp},
		{name: "seed: bad day count", args: []string{"seed", "-actor", "t@test.cd", "-days", "0"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			cli, _, _ := setup(t)
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_ping(t *testing.T) {
	cli, _, out := setup(t)

	if err := cli.run([]string{"admin", "ping"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "is up") {
		t.Errorf("ping output = %q", got)
	}
}

func Test_commandLine_pingPasswordPrompt(t *testing.T) {
	fake := lrstest.NewServer("hulab", "s3cret", nil)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	newCLI := func() (*commandLine, *bytes.Buffer) {
		conf := testConfig()
		conf.LRS.Endpoint = srv.URL + "/xapi"
		conf.LRS.Password = "" // must be prompted
		out := new(bytes.Buffer)
		return &commandLine{conf: conf, logger: testutil.NewLogger(t), out: out}, out
	}

	cli, out := newCLI()
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }
	if err := cli.run([]string{"admin", "ping"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "is up") {
		t.Errorf("ping output = %q", got)
	}

	// an empty prompt bails out
	cli, _ = newCLI()
	readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
	if err := cli.run([]string{"admin", "ping"}); err != errHelp {
		t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
	}
}

func Test_commandLine_seed(t *testing.T) {
	cli, store, out := setup(t)

	args := []string{"admin", "seed", "-actor", "teacher@hulab.demo", "-projects", "2", "-days", "3"}
	if err := cli.run(args); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	counts := make(map[string]int)
	for _, stmt := range store.Statements() {
		counts[stmt.Verb.ID]++
	}
	wantCounts := map[string]int{
		xapi.VerbLoggedIn.ID:     1, // seed login
		xapi.VerbCollaborated.ID: 2, // one per project
		xapi.VerbCommented.ID:    2,
		xapi.VerbShared.ID:       2,
		xapi.VerbAttempted.ID:    6, // projects x days
		xapi.VerbCompleted.ID:    4, // every other day
		xapi.VerbExperienced.ID:  2, // every third day
	}
	for verb, want := range wantCounts {
		if counts[verb] != want {
			t.Errorf("statements with verb %s = %d; want %d", verb, counts[verb], want)
		}
	}
	if got := out.String(); !strings.Contains(got, "seeded 2 projects") {
		t.Errorf("seed output = %q", got)
	}
}

func Test_commandLine_overview(t *testing.T) {
	cli, store, out := setup(t)

	object := xapi.NewActivity(xapi.ActivityID("project", "p1"), xapi.ActivityTypeURI("project"), "Photosynthesis")
	testutil.MustSave(t, store, &xapi.Statement{Actor: xapi.AgentFromEmail("alice@test.cd"), Verb: xapi.VerbAttempted, Object: object})
	testutil.MustSave(t, store, &xapi.Statement{Actor: xapi.AgentFromEmail("alice@test.cd"), Verb: xapi.VerbCompleted, Object: object})

	if err := cli.run([]string{"admin", "overview", "-preset", "today"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	var ov analytics.Overview
	if err := json.Unmarshal(out.Bytes(), &ov); err != nil {
		t.Fatalf("decoding overview output: %v", err)
	}
	if ov.TotalActivities != 2 {
		t.Errorf("TotalActivities = %d; want 2", ov.TotalActivities)
	}
	if ov.CompletionRate != 100 {
		t.Errorf("CompletionRate = %v; want 100", ov.CompletionRate)
	}
}

func Test_commandLine_overviewUnknownPreset(t *testing.T) {
	cli, _, _ := setup(t)

	err := cli.run([]string{"admin", "overview", "-preset", "fortnight"})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("cli.run() error = %v; want a validation error", err)
	}
}

func Test_commandLine_devlrs(t *testing.T) {
	cli, _, _ := setup(t)

	if err := cli.run([]string{"admin", "devlrs", "-addr", "lol"}); err == nil {
		t.Error("cli.run() expected a listen error")
	}
}
