package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/config"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/introspect"
	"github.com/mordonez-me/capibara/internal/loader"
	"github.com/mordonez-me/capibara/internal/metrics"
	"github.com/mordonez-me/capibara/internal/negotiate"
	"github.com/mordonez-me/capibara/internal/registry"
	"github.com/mordonez-me/capibara/internal/transport/httpcap"
)

var allFeedNames = []string{"feed.page.v1", "feed.cursor.v2", "feed.cursor.v3", "profile.prefs.v1"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHashNames(t *testing.T) {
	out, err := execute(t, "hash", "feed.cursor.v2", "feed.page.v1")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Compute("feed.page.v1", "feed.cursor.v2").String(), strings.TrimSpace(out))

	// Order and duplicates do not matter.
	again, err := execute(t, "hash", "feed.page.v1", "feed.cursor.v2", "feed.page.v1")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestHashInvalidName(t *testing.T) {
	out, err := execute(t, "hash", "feed page")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidArgument)
}

func TestHashRegistryJSON(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--format", "json", "hash", "--registry", dir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   HashResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, fingerprint.Compute(allFeedNames...).String(), resp.Data.Fingerprint)
	assert.Equal(t, []string{"feed.cursor.v2", "feed.cursor.v3", "feed.page.v1", "profile.prefs.v1"}, resp.Data.Capabilities)
}

func TestHashHeaders(t *testing.T) {
	out, err := execute(t, "hash", "--headers", "b.v1", "a.v1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "x-capability-hash: "+fingerprint.Compute("a.v1", "b.v1").String(), lines[0])
	assert.Equal(t, "x-capabilities: a.v1,b.v1", lines[1])
}

func TestLineage(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--registry", dir, "lineage", "feed.cursor.v3")
	require.NoError(t, err)
	assert.Contains(t, out, "feed.page.v1 → feed.cursor.v2 → feed.cursor.v3")
	assert.NotContains(t, out, "replaced by")

	out, err = execute(t, "--registry", dir, "lineage", "feed.page.v1")
	require.NoError(t, err)
	assert.Contains(t, out, "replaced by feed.cursor.v2")
}

func TestLineageJSON(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--format", "json", "--registry", dir, "lineage", "feed.cursor.v2")
	require.NoError(t, err)

	var resp struct {
		Data LineageResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "feed.page.v1", resp.Data.Feature)
	assert.Equal(t, []string{"feed.page.v1", "feed.cursor.v2"}, resp.Data.Lineage)
	assert.Equal(t, []string{"feed.cursor.v3"}, resp.Data.Successors)
	assert.Equal(t, "1.4.0", resp.Data.Record.IntroducedIn)
}

func TestLineageUnknown(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--registry", dir, "lineage", "feed.cursor.v9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownCapability)
}

func resolveJSON(t *testing.T, args ...string) ResolveResult {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json", "resolve"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ResolveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestResolveList(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	r := resolveJSON(t, "--registry", dir, "--list", "feed.page.v1, feed.cursor.v3,unknown.v9")

	assert.Equal(t, string(negotiate.OutcomeResolved), r.Outcome)
	assert.Equal(t, []string{"feed.cursor.v3", "feed.page.v1"}, r.Effective)
	assert.Equal(t, []string{"unknown.v9"}, r.Ignored)
	assert.Equal(t, fingerprint.Compute("feed.page.v1", "feed.cursor.v3").String(), r.Fingerprint)
	require.Len(t, r.Selections, 2)
	assert.Equal(t, "feed.page.v1", r.Selections[0].Feature)
	assert.Equal(t, "feed.cursor.v3", r.Selections[0].Capability)
	assert.Equal(t, "profile.prefs.v1", r.Selections[1].Feature)
	assert.True(t, r.Selections[1].Baseline)
}

func TestResolveText(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--registry", dir, "resolve", "--list", "feed.cursor.v2")
	require.NoError(t, err)
	assert.Contains(t, out, "outcome      resolved")
	assert.Contains(t, out, "ignored      -")
	assert.Contains(t, out, "feed.page.v1 → feed.cursor.v2")
	assert.Contains(t, out, "profile.prefs.v1 → baseline")
}

func TestResolveAbsent(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	r := resolveJSON(t, "--registry", dir)
	assert.Equal(t, string(negotiate.OutcomeAbsent), r.Outcome)
	assert.Empty(t, r.Effective)
	for _, sel := range r.Selections {
		assert.True(t, sel.Baseline, sel.Feature)
	}
}

func TestResolveHashOnly(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	// The local set is always in the catalog.
	r := resolveJSON(t, "--registry", dir, "--hash", fingerprint.Compute(allFeedNames...).String())
	assert.Equal(t, string(negotiate.OutcomeResolved), r.Outcome)
	assert.Len(t, r.Effective, 4)

	r = resolveJSON(t, "--registry", dir, "--hash", fingerprint.Compute("other.v1").String())
	assert.Equal(t, string(negotiate.OutcomeUnknownFingerprint), r.Outcome)
	assert.Empty(t, r.Effective)
}

func TestResolveHashFromConfiguredCatalog(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	cfg := writeConfig(t, "catalog:\n  - [feed.page.v1, feed.cursor.v2]\n")

	r := resolveJSON(t, "--config", cfg, "--registry", dir, "--hash", fingerprint.Compute("feed.page.v1", "feed.cursor.v2").String())
	assert.Equal(t, string(negotiate.OutcomeResolved), r.Outcome)
	assert.Equal(t, []string{"feed.cursor.v2", "feed.page.v1"}, r.Effective)
}

func TestResolveMismatchDegrades(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	r := resolveJSON(t, "--registry", dir,
		"--hash", fingerprint.Compute("feed.page.v1").String(),
		"--list", "feed.cursor.v2")
	assert.Equal(t, string(negotiate.OutcomeDecodeError), r.Outcome)
	assert.Contains(t, r.Error, negotiate.ErrCodeFingerprintMismatch)
	assert.Empty(t, r.Effective)
}

func TestResolveStrict(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	_, err := execute(t, "--registry", dir, "resolve", "--strict", "--hash", "v9:abc")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "--registry", dir, "resolve", "--strict", "--list", "feed.page.v1")
	require.NoError(t, err)
}

func TestExportText(t *testing.T) {
	dir := writeRegistry(t, feedYAML)

	out, err := execute(t, "--registry", dir, "export")
	require.NoError(t, err)

	assert.Contains(t, out, fingerprint.Compute(allFeedNames...).String()+" (4 capabilities, 2 features)")

	// Introduction order, not name order.
	order := []string{"feed.page.v1", "profile.prefs.v1", "feed.cursor.v2", "feed.cursor.v3"}
	last := -1
	for _, name := range order {
		i := strings.Index(out, "  "+name)
		require.Greater(t, i, last, name)
		last = i
	}
	assert.Contains(t, out, "feed.cursor.v3  replaces feed.cursor.v2")
}

func TestExportJSONAndFile(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	outFile := filepath.Join(t.TempDir(), "graph.json")

	out, err := execute(t, "--format", "json", "--registry", dir, "export", "-o", outFile)
	require.NoError(t, err)

	var resp struct {
		Data introspect.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Capabilities, 4)
	assert.Len(t, resp.Data.Features, 2)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var written introspect.Snapshot
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, resp.Data, written)
}

func TestExportWithheldInProduction(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	cfg := writeConfig(t, "environment: production\n")

	out, err := execute(t, "--config", cfg, "--registry", dir, "export")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeIntrospectionDenied)
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, out, `"capabilities"`)
	assert.Contains(t, out, `"introducedIn"`)
}

func TestMCPWithheldInProduction(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	cfg := writeConfig(t, "environment: production\n")

	_, err := execute(t, "--config", cfg, "--registry", dir, "mcp")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeIntrospectionDenied)
}

func newServeFixture(t *testing.T, cfg config.Config, ids httpcap.IDGenerator) (http.Handler, *negotiate.Engine) {
	t.Helper()
	res, err := loader.Load(writeRegistry(t, feedYAML))
	require.NoError(t, err)
	store := registry.New()
	require.NoError(t, store.RegisterAll(res.Records))

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	e := newEngine(cfg, nil, quietLogger(), m)
	require.NoError(t, e.Reload(store.All()))
	return newServeHandler(e, cfg, reg, quietLogger(), ids), e
}

func TestServeHandler_Negotiate(t *testing.T) {
	h, _ := newServeFixture(t, config.Default(), httpcap.NewFixedGenerator("req-1"))

	req := httptest.NewRequest(http.MethodGet, "/negotiate", nil)
	req.Header.Set(negotiate.HeaderCapabilities, "feed.page.v1,feed.cursor.v2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(httpcap.HeaderRequestID))
	want := fingerprint.Compute("feed.page.v1", "feed.cursor.v2").String()
	assert.Equal(t, want, rec.Header().Get(negotiate.HeaderEffective))

	var body ResolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, want, body.Fingerprint)
	require.Len(t, body.Selections, 2)
	assert.Equal(t, "feed.cursor.v2", body.Selections[0].Capability)
}

func TestServeHandler_Endpoints(t *testing.T) {
	h, _ := newServeFixture(t, config.Default(), nil)

	// One negotiation so the counters have a sample.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/negotiate", nil))

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, "OK"},
		{"/capabilities", http.StatusOK, `"fingerprint"`},
		{"/metrics", http.StatusOK, "capibara_negotiation_total"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestServeHandler_Production(t *testing.T) {
	cfg := config.Default()
	cfg.Environment = config.EnvProduction
	h, _ := newServeFixture(t, cfg, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capabilities", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/negotiate", nil)
	req.Header.Set(negotiate.HeaderCapabilities, "feed.page.v1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(negotiate.HeaderEffective))
	assert.NotEmpty(t, rec.Header().Get(httpcap.HeaderRequestID))
}

func TestReloadGraph(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	path := filepath.Join(dir, "capabilities.yaml")

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	res, err := loader.Load(dir)
	require.NoError(t, err)
	e := newEngine(config.Default(), nil, quietLogger(), m)
	require.NoError(t, e.Reload(res.Records))
	require.Equal(t, 4, e.Graph().Len())

	// A new capability is picked up.
	require.NoError(t, os.WriteFile(path, []byte(feedYAML+"  - name: feed.cursor.v4\n    replaces: feed.cursor.v3\n"), 0o644))
	require.NoError(t, reloadGraph(e, []string{dir}))
	assert.Equal(t, 5, e.Graph().Len())

	// Rejected declarations keep the active graph.
	require.NoError(t, os.WriteFile(path, []byte(feedYAML+"  - name: feed.cursor.v4\n    replaces: feed.missing.v1\n"), 0o644))
	require.Error(t, reloadGraph(e, []string{dir}))
	assert.Equal(t, 5, e.Graph().Len())

	// Dropping a declared name is rejected too.
	require.NoError(t, os.WriteFile(path, []byte(feedYAML), 0o644))
	err = reloadGraph(e, []string{dir})
	var removed *capability.RemovedNameError
	require.ErrorAs(t, err, &removed)
	assert.Equal(t, []string{"feed.cursor.v4"}, removed.Names)
	assert.Equal(t, 5, e.Graph().Len())

	// So do unreadable ones.
	require.NoError(t, os.WriteFile(path, []byte("capabilities: [\n"), 0o644))
	require.Error(t, reloadGraph(e, []string{dir}))
	assert.Equal(t, 5, e.Graph().Len())

	expected := `# HELP capibara_graph_reloads_total Graph rebuilds by result
# TYPE capibara_graph_reloads_total counter
capibara_graph_reloads_total{result="failure"} 3
capibara_graph_reloads_total{result="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "capibara_graph_reloads_total"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	dir := writeRegistry(t, feedYAML)
	t.Setenv("CAPIBARA_INTROSPECTION_TOKEN", "")
	defer slog.SetDefault(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--registry", dir, "serve", "--addr", "127.0.0.1:0"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, buf.String(), "Serving on 127.0.0.1:0")
}

func TestServeRejectsInvalidDeclarations(t *testing.T) {
	dir := writeRegistry(t, "capabilities:\n  - name: a.v1\n    replaces: b.v1\n")
	defer slog.SetDefault(slog.Default())

	out, err := execute(t, "--registry", dir, "serve", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "C102")
}
