package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/vigil/pkg/api"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/store"
	"github.com/harun/vigil/pkg/tool"
	"github.com/harun/vigil/pkg/webhook"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// priceWatch triggers on every check and proposes a sell
type priceWatch struct{}

func (priceWatch) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        "btc_monitor",
		Kind:        tool.KindActive,
		Description: "watches BTC",
		ConfigSchema: tool.Schema{
			"threshold": {Type: tool.FieldFloat, Default: 45000.0},
		},
	}
}

func (priceWatch) DefaultInterval() time.Duration { return time.Hour }

func (priceWatch) Check(ctx context.Context, cfg tool.Config) (tool.CheckResult, error) {
	return tool.CheckResult{
		Status:      tool.StatusOK,
		Data:        map[string]any{"price": 46000.0},
		Trigger:     true,
		Description: "BTC above 45000",
		ToolToCall:  "trader",
		Arguments:   []any{"sell", "BTC", 0.5},
	}, nil
}

// orderDesk counts executions
type orderDesk struct {
	calls atomic.Int32
}

func (o *orderDesk) Metadata() tool.Metadata {
	return tool.Metadata{Name: "trader", Kind: tool.KindReactive, Description: "places orders"}
}

func (o *orderDesk) Execute(ctx context.Context, cfg tool.Config, args ...any) tool.ExecuteResult {
	o.calls.Add(1)
	return tool.ExecuteResult{Status: tool.StatusSuccess, Result: map[string]any{"order_id": fmt.Sprintf("%v_%v", args[0], args[1])}}
}

type daemonFixture struct {
	url     string
	secret  string
	config  string
	manager *notification.Manager
	trader  *orderDesk
}

// newDaemonFixture serves the real API over httptest. Any hooks are
// mounted under /hooks.
func newDaemonFixture(t *testing.T, secret string, hooks ...webhook.Hook) *daemonFixture {
	t.Helper()

	registry := tool.NewRegistry()
	trader := &orderDesk{}
	for _, tl := range []tool.Tool{priceWatch{}, trader} {
		d, err := tool.New(tl, nil)
		require.NoError(t, err)
		require.NoError(t, registry.Register(d))
	}

	dir := t.TempDir()
	fs, err := store.NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	require.NoError(t, err)

	manager, err := notification.NewManager(notification.Config{Store: fs, Registry: registry, Logger: zerolog.Nop()})
	require.NoError(t, err)

	sched, err := scheduler.New(scheduler.Config{Registry: registry, Notifier: manager, Logger: zerolog.Nop()})
	require.NoError(t, err)

	apiCfg := api.Config{
		SharedSecret: secret,
		Registry:     registry,
		Scheduler:    sched,
		Manager:      manager,
		Logger:       zerolog.Nop(),
	}
	if len(hooks) > 0 {
		wh, err := webhook.NewHandler(webhook.Config{Hooks: hooks, Notifier: manager, Logger: zerolog.Nop()})
		require.NoError(t, err)
		t.Cleanup(wh.Close)
		apiCfg.Webhooks = wh
	}

	srv, err := api.NewServer(apiCfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.StopAll(ctx)
	})

	return &daemonFixture{
		url:     ts.URL,
		secret:  secret,
		config:  filepath.Join(dir, "vigil.json"),
		manager: manager,
		trader:  trader,
	}
}

// run executes a client command against the fixture
func (f *daemonFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--config", f.config, "--addr", f.url, "--secret", f.secret}, args...)
	return execute(t, full...)
}

// execute runs the root command with fresh flag values and captures output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := GetRootCmd()
	resetFlags(cmd)

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

// resetFlags restores every flag to its default so values from a
// previous Execute do not leak into the next one
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
