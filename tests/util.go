package testutil

import (
	"context"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// NewValidator builds the validator stack the way the app wires it, then
// applies the per-package registrations passed in.
func NewValidator(inits ...func(*validator.Validate, ut.Translator)) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	for _, init := range inits {
		init(validate, translator)
	}
	return validate, translator
}

// NewLogger returns a core.Logger that writes through the test log.
func NewLogger(t *testing.T) core.Logger {
	return &testLogger{t: t}
}

type testLogger struct{ t *testing.T }

var _ core.Logger = (*testLogger)(nil)

func (l *testLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *testLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *testLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *testLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("FATAL %s %v", msg, args) }

func (l *testLogger) log(level, msg string, args []interface{}) {
	l.t.Helper()
	if len(args) > 0 {
		l.t.Logf("%s %s %v", level, msg, args)
		return
	}
	l.t.Logf("%s %s", level, msg)
}

// MustSave appends a statement fixture and fails the test on error.
func MustSave(t *testing.T, client xapi.Client, stmt *xapi.Statement) string {
	t.Helper()
	id, err := client.SaveStatement(context.Background(), stmt)
	if err != nil {
		t.Fatalf("SaveStatement() failed: %v", err)
	}
	return id
}

// FaultClient wraps a record store client and fails selected operations;
// everything else delegates. The zero wrap behaves like the wrapped client.
type FaultClient struct {
	xapi.Client

	AboutErr         error
	SaveStatementErr error
	QueryErr         error
	// FailStates holds activity URIs whose state reads fail with StateErr.
	FailStates map[string]bool
	StateErr   error
}

func (c *FaultClient) About(ctx context.Context) error {
	if c.AboutErr != nil {
		return c.AboutErr
	}
	return c.Client.About(ctx)
}

func (c *FaultClient) SaveStatement(ctx context.Context, stmt *xapi.Statement) (string, error) {
	if c.SaveStatementErr != nil {
		return "", c.SaveStatementErr
	}
	return c.Client.SaveStatement(ctx, stmt)
}

func (c *FaultClient) Query(ctx context.Context, filter xapi.Filter) (xapi.Cursor, error) {
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	return c.Client.Query(ctx, filter)
}

func (c *FaultClient) GetActivityState(ctx context.Context, agent xapi.Agent, activityID, stateID string) ([]byte, error) {
	if c.FailStates[activityID] {
		err := c.StateErr
		if err == nil {
			err = xapi.NewUpstreamError("reading state", 502, nil)
		}
		return nil, err
	}
	return c.Client.GetActivityState(ctx, agent, activityID, stateID)
}
