package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

func TestVersionCmd(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	defer func() { Version, GitCommit = oldVersion, oldCommit }()
	Version, GitCommit = "1.2.3", "abcdef"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "bookpage 1.2.3")
	assert.Contains(t, out.String(), "Commit: abcdef")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{{"serve"}, {"migrate"}, {"sweep", "grace"}, {"sweep", "preview"}} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, serveCmd.Flags().Lookup("no-sweeps"))
}

func testApp(t *testing.T, checks ...func(context.Context) error) *app {
	t.Helper()
	a := &app{
		cfg: Config{
			App:     appConfig{Name: "bookpage", JWTSecret: "secret", DebugEndpoints: true},
			Billing: billing.Config{GracePeriod: time.Hour, HandlerTimeout: time.Second},
			Stripe:  billing.StripeConfig{WebhookSecret: "whsec_test"},
		},
		log:    logger.Discard(),
		store:  profile.NewMemoryStore(),
		events: billing.NewMemoryEventLog(time.Hour),
		checks: checks,
	}
	a.wire()
	return a
}

func TestRouter(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) error { return assert.AnError }
	handler, err := testApp(t, failing).router()
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/webhooks/stripe", http.StatusBadRequest},
		{http.MethodPost, "/billing/sync", http.StatusUnauthorized},
		{http.MethodGet, "/billing/debug/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestRouter_RequiresSigningKey(t *testing.T) {
	t.Parallel()
	a := testApp(t)
	a.cfg.App.JWTSecret = ""
	_, err := a.router()
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	sweepGraceCmd.SetOut(&out)
	printReport(sweepGraceCmd, reconcile.SweepReport{Matched: 3, Changed: 2, Failed: 1})
	assert.Equal(t, "matched 3, changed 2, failed 1\n", out.String())
}
