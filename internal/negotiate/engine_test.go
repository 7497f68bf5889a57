package negotiate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
	"github.com/mordonez-me/capibara/internal/metrics"
)

func feedRecords() []capability.Record {
	return []capability.Record{
		{Name: "feed.page.v1"},
		{Name: "feed.cursor.v2", Replaces: "feed.page.v1"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// assertCounter checks that the counter family name holds exactly one
// series, label=value, at count.
func assertCounter(t *testing.T, reg *prometheus.Registry, name, help, label, value string, count int) {
	t.Helper()
	expected := fmt.Sprintf("# HELP %s %s\n# TYPE %s counter\n%s{%s=%q} %d\n",
		name, help, name, name, label, value, count)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), name))
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	g, err := graph.Build(feedRecords())
	require.NoError(t, err)
	return NewEngine(g, append([]EngineOption{WithLogger(quietLogger())}, opts...)...)
}

func TestEngine_NegotiateList(t *testing.T) {
	e := newTestEngine(t)

	n := e.Negotiate(MapCarrier{HeaderCapabilities: "feed.cursor.v2"})

	assert.Equal(t, OutcomeResolved, n.Outcome)
	assert.NoError(t, n.Err)
	assert.True(t, n.Result.HasCapability("feed.cursor.v2"))

	sel, ok := n.Result.Select("feed.page.v1")
	require.True(t, ok)
	assert.Equal(t, "feed.cursor.v2", sel.Capability)
}

func TestEngine_NegotiateAbsent(t *testing.T) {
	e := newTestEngine(t)

	n := e.Negotiate(MapCarrier{})

	assert.Equal(t, OutcomeAbsent, n.Outcome)
	assert.False(t, n.Result.HasCapability("feed.cursor.v2"))
	sel, _ := n.Result.Select("feed.page.v1")
	assert.True(t, sel.Baseline)
}

func TestEngine_NegotiateHashFromCatalog(t *testing.T) {
	e := newTestEngine(t)

	// The local set is always in the catalog.
	n := e.Negotiate(MapCarrier{HeaderHash: e.Advertiser().CapabilityHash()})
	assert.Equal(t, OutcomeResolved, n.Outcome)
	assert.True(t, n.Result.HasCapability("feed.page.v1"))
	assert.True(t, n.Result.HasCapability("feed.cursor.v2"))

	// A published client manifest.
	e.Catalog().Add(capability.NewSet("feed.page.v1"))
	n = e.Negotiate(MapCarrier{HeaderHash: fingerprint.Compute("feed.page.v1").String()})
	assert.Equal(t, OutcomeResolved, n.Outcome)
	assert.True(t, n.Result.HasCapability("feed.page.v1"))
	assert.False(t, n.Result.HasCapability("feed.cursor.v2"))
}

func TestEngine_NegotiateUnknownHash(t *testing.T) {
	e := newTestEngine(t)

	n := e.Negotiate(MapCarrier{HeaderHash: fingerprint.Compute("somebody.else.v1").String()})

	assert.Equal(t, OutcomeUnknownFingerprint, n.Outcome)
	assert.NoError(t, n.Err)
	assert.True(t, n.Result.Effective().IsEmpty())
}

func TestEngine_NegotiateDecodeErrorIsAbsorbed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	e := newTestEngine(t, WithMetrics(m))

	n := e.Negotiate(MapCarrier{
		HeaderHash:         fingerprint.Compute("feed.page.v1").String(),
		HeaderCapabilities: "feed.cursor.v2",
	})

	assert.Equal(t, OutcomeDecodeError, n.Outcome)
	require.NotNil(t, n.Result)
	assert.False(t, n.Result.HasCapability("feed.cursor.v2"))

	var de *NegotiationDecodeError
	require.ErrorAs(t, n.Err, &de)
	assert.Equal(t, ErrCodeFingerprintMismatch, de.Code)

	count, err := testutil.GatherAndCount(reg, "capibara_negotiation_decode_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_CatalogBoundedAcrossReloads(t *testing.T) {
	e := newTestEngine(t)
	oldHash := e.Advertiser().CapabilityHash()

	records := feedRecords()
	for i := 0; i < 5; i++ {
		records = append(records, capability.Record{Name: fmt.Sprintf("extra.v%d", i)})
		require.NoError(t, e.Reload(records))
	}

	assert.Equal(t, 2, e.Catalog().Len(), "empty set plus the active local set")
	n := e.Negotiate(MapCarrier{HeaderHash: oldHash})
	assert.Equal(t, OutcomeUnknownFingerprint, n.Outcome)
	n = e.Negotiate(MapCarrier{HeaderHash: e.Advertiser().CapabilityHash()})
	assert.Equal(t, OutcomeResolved, n.Outcome)
}

func TestEngine_EmptyAdvertiserIsAbsent(t *testing.T) {
	e := newTestEngine(t)

	c := MapCarrier{}
	NewAdvertiser(capability.Set{}).Inject(c)
	require.NotEmpty(t, c.Get(HeaderHash))

	n := e.Negotiate(c)
	assert.Equal(t, OutcomeAbsent, n.Outcome)
	assert.NoError(t, n.Err)
	assert.True(t, n.Result.Effective().IsEmpty())
}

func TestEngine_IllFormedEntriesIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	e := newTestEngine(t, WithMetrics(m))

	long := strings.Repeat("x", capability.MaxNameLength+1)
	for _, list := range []string{"feed.cursor.v2," + long, "feed.cursor.v2,chat/v9"} {
		n := e.Negotiate(MapCarrier{HeaderCapabilities: list})

		assert.Equal(t, OutcomeResolved, n.Outcome, list)
		assert.NoError(t, n.Err)
		assert.True(t, n.Result.HasCapability("feed.cursor.v2"))
		assert.Equal(t, []string{"feed.cursor.v2"}, n.Result.Effective().Names())
		assert.Equal(t, 1, n.Result.Ignored().Len())
	}
	assertCounter(t, reg, "capibara_negotiation_decode_errors_total",
		"Undecodable negotiation artifacts by error code", "code", ErrCodeMalformedList, 2)

	// The hash covers the ill-formed entry too.
	hash := fingerprint.Compute("feed.cursor.v2", "chat/v9").String()
	n := e.Negotiate(MapCarrier{HeaderHash: hash, HeaderCapabilities: "feed.cursor.v2,chat/v9"})
	assert.Equal(t, OutcomeResolved, n.Outcome)
	assert.True(t, n.Result.HasCapability("feed.cursor.v2"))
}

func TestEngine_ReloadSwapsOnSuccess(t *testing.T) {
	e := newTestEngine(t)
	before := e.Graph()

	err := e.Reload(append(feedRecords(), capability.Record{Name: "feed.cursor.v3", Replaces: "feed.cursor.v2"}))
	require.NoError(t, err)

	assert.NotSame(t, before, e.Graph())
	assert.True(t, e.Graph().Has("feed.cursor.v3"))

	n := e.Negotiate(MapCarrier{HeaderCapabilities: "feed.cursor.v3"})
	assert.True(t, n.Result.HasCapability("feed.cursor.v3"))
}

func TestEngine_ReloadKeepsGraphOnFailure(t *testing.T) {
	e := newTestEngine(t)
	before := e.Graph()

	err := e.Reload([]capability.Record{{Name: "A", Replaces: "B"}, {Name: "B", Replaces: "A"}})

	var cycleErr *capability.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Same(t, before, e.Graph())
}

func TestEngine_Publish(t *testing.T) {
	e := newTestEngine(t)

	err := e.Publish(capability.Record{Name: "feed.cursor.v3", Replaces: "feed.cursor.v2"})
	require.NoError(t, err)
	assert.True(t, e.Graph().Has("feed.cursor.v3"))
	assert.Equal(t, 3, e.Graph().Len())

	// Dangling: nothing changes.
	err = e.Publish(capability.Record{Name: "chat.v2", Replaces: "chat.v1"})
	var dangling *capability.DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, 3, e.Graph().Len())
	assert.False(t, e.Graph().Has("chat.v2"))

	// Duplicate: nothing changes.
	err = e.Publish(capability.Record{Name: "feed.page.v1"})
	var dup *capability.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 3, e.Graph().Len())
}

func TestEngine_PublishKeepsReloadedRecords(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Reload(append(feedRecords(), capability.Record{Name: "chat.v1"})))

	require.NoError(t, e.Publish(capability.Record{Name: "profile.v1"}))

	g := e.Graph()
	assert.Equal(t, 4, g.Len())
	for _, name := range []string{"feed.page.v1", "feed.cursor.v2", "chat.v1", "profile.v1"} {
		assert.True(t, g.Has(name), name)
	}
}

func TestEngine_ReloadRejectsRemovedNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	e := newTestEngine(t, WithMetrics(m))
	before := e.Graph()

	err = e.Reload([]capability.Record{{Name: "feed.page.v1"}})

	var removed *capability.RemovedNameError
	require.ErrorAs(t, err, &removed)
	assert.Equal(t, []string{"feed.cursor.v2"}, removed.Names)
	assert.Equal(t, capability.KindRemovedName, removed.Kind())
	assert.Equal(t, capability.ErrCodeRemovedName, removed.Violations()[0].Code)
	assert.Same(t, before, e.Graph())
	assert.True(t, e.Negotiate(MapCarrier{HeaderCapabilities: "feed.cursor.v2"}).Result.HasCapability("feed.cursor.v2"))
	assertCounter(t, reg, "capibara_graph_reloads_total", "Graph rebuilds by result", "result", "failure", 1)

	// A rename is a removal plus an addition.
	err = e.Reload([]capability.Record{
		{Name: "feed.page.v1"},
		{Name: "feed.cursor.v2b", Replaces: "feed.page.v1"},
	})
	require.ErrorAs(t, err, &removed)
	assert.Equal(t, []string{"feed.cursor.v2"}, removed.Names)

	// Deprecating instead is accepted.
	require.NoError(t, e.Reload([]capability.Record{
		{Name: "feed.page.v1"},
		{Name: "feed.cursor.v2", Replaces: "feed.page.v1", Deprecated: true},
	}))
}

func TestEngine_ReloadFailedCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	e := newTestEngine(t, WithMetrics(m))
	before := e.Graph()

	e.ReloadFailed(errors.New("declarations unreadable"))

	assert.Same(t, before, e.Graph())
	assertCounter(t, reg, "capibara_graph_reloads_total", "Graph rebuilds by result", "result", "failure", 1)
}

// TestEngine_ConcurrentReload tests that negotiations running during
// reloads always see one complete graph.
func TestEngine_ConcurrentReload(t *testing.T) {
	e := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n := e.Negotiate(MapCarrier{HeaderCapabilities: "feed.cursor.v2,extra.v0,extra.v9"})
				g := n.Result.Graph()
				extras := g.Len() - len(feedRecords())
				assert.Equal(t, extras > 0, n.Result.HasCapability("extra.v0"))
				assert.Equal(t, extras > 9, n.Result.HasCapability("extra.v9"))
				assert.True(t, n.Result.HasCapability("feed.cursor.v2"))
			}
		}()
	}

	records := feedRecords()
	for i := 0; i < 50; i++ {
		records = append(records, capability.Record{Name: fmt.Sprintf("extra.v%d", i)})
		require.NoError(t, e.Reload(records))
	}
	wg.Wait()
}

func TestEngine_AdvertiserRoundTrip(t *testing.T) {
	client := newTestEngine(t)
	server := newTestEngine(t)

	c := MapCarrier{}
	client.Advertiser().Inject(c)

	n := server.Negotiate(c)
	assert.Equal(t, OutcomeResolved, n.Outcome)
	assert.True(t, n.Result.Effective().Equal(client.Graph().Names()))
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.False(t, HasCapability(ctx, "feed.cursor.v2"))

	n := newTestEngine(t).Negotiate(MapCarrier{HeaderCapabilities: "feed.cursor.v2"})
	ctx = WithResult(ctx, n.Result)

	assert.Same(t, n.Result, FromContext(ctx))
	assert.True(t, HasCapability(ctx, "feed.cursor.v2"))
	assert.False(t, HasCapability(ctx, "feed.page.v1"))
}

func TestAdvertiser(t *testing.T) {
	a := NewAdvertiser(capability.NewSet("feed.page.v1"))
	assert.Equal(t, fingerprint.Compute("feed.page.v1").String(), a.CapabilityHash())
	assert.Equal(t, []string{"feed.page.v1"}, a.Capabilities().Names())

	empty := AdvertiserFromGraph(nil)
	assert.Equal(t, fingerprint.Compute().String(), empty.CapabilityHash())
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(capability.NewSet("a.v1"), capability.NewSet("a.v1"))
	assert.Equal(t, 2, c.Len(), "empty set plus a.v1")

	empty, ok := c.Lookup(fingerprint.Compute())
	require.True(t, ok)
	assert.True(t, empty.IsEmpty())

	s, ok := c.Lookup(fingerprint.Compute("a.v1"))
	require.True(t, ok)
	assert.Equal(t, []string{"a.v1"}, s.Names())

	_, ok = c.Lookup(fingerprint.Compute("b.v1"))
	assert.False(t, ok)

	// The local slot holds one set at a time.
	c.SetLocal(capability.NewSet("l.v1"))
	c.SetLocal(capability.NewSet("l.v1", "l.v2"))
	assert.Equal(t, 3, c.Len())
	_, ok = c.Lookup(fingerprint.Compute("l.v1"))
	assert.False(t, ok)
	_, ok = c.Lookup(fingerprint.Compute("l.v1", "l.v2"))
	assert.True(t, ok)

	// A configured set equal to the local one is counted once.
	c.SetLocal(capability.NewSet("a.v1"))
	assert.Equal(t, 2, c.Len())

	var nilCatalog *Catalog
	_, ok = nilCatalog.Lookup(fingerprint.Compute("a.v1"))
	assert.False(t, ok)
	assert.Equal(t, 0, nilCatalog.Len())
}
