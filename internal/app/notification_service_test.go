package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"youtrack_notification_bot/internal/domain/channel"
	"youtrack_notification_bot/internal/domain/issue"
	"youtrack_notification_bot/internal/domain/schedule"
)

type serviceFixture struct {
	store     *memStore
	registry  *Registry
	source    *fakeSource
	deliverer *fakeDeliverer
	service   *NotificationService
}

func newServiceFixture(t *testing.T, entries ...channel.Entry) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		store:     newMemStore(entries...),
		source:    &fakeSource{results: map[string][]issue.Issue{}},
		deliverer: &fakeDeliverer{},
	}
	fx.registry = mustLoadRegistry(t, fx.store)
	fx.service = NewNotificationService(
		fx.registry,
		fx.source,
		fx.deliverer,
		NewFormatter("https://yt.example.com", LinkStyleMarkdown),
		schedule.NewEvaluator(time.Minute),
		nullLogger(),
	)
	return fx
}

func (fx *serviceFixture) lastCheck(t *testing.T, name string) time.Time {
	t.Helper()
	var ts time.Time
	_ = fx.registry.View(func(tx *Tx) error {
		ts, _ = tx.LastCheck(name)
		return nil
	})
	return ts
}

var t0 = time.Date(2024, 4, 8, 10, 0, 0, 0, time.Local)

func supportChannel(extra ...channel.Entry) []channel.Entry {
	return append([]channel.Entry{
		{Key: "support.name", Value: "Support"},
		{Key: "support.query", Value: "project: SUP"},
		{Key: "support.lastcheck", Value: t0.Format(channel.TimestampLayout)},
	}, extra...)
}

func TestTrackingDeliversNewIssuesAndAdvancesLastCheck(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t, supportChannel(channel.Entry{Key: "support.tracking", Value: "polling"})...)
	now := t0.Add(10 * time.Minute)

	query := "project: SUP created: 2024-04-08T10:00:00 .. 2024-04-08T10:10:00"
	fx.source.results[query] = []issue.Issue{
		{IDReadable: "SUP-1", Summary: "first", Created: t0.Add(time.Second).UnixMilli()},
		{IDReadable: "SUP-2", Summary: "second", Created: t0.Add(2 * time.Second).UnixMilli()},
	}

	if err := fx.service.ScanChannels(context.Background(), now); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}

	if len(fx.deliverer.deliveries) != 2 {
		t.Fatalf("got %d deliveries, want 2: %+v", len(fx.deliverer.deliveries), fx.deliverer.deliveries)
	}
	if !strings.Contains(fx.deliverer.deliveries[0].Message, "SUP-1") || !strings.Contains(fx.deliverer.deliveries[1].Message, "SUP-2") {
		t.Fatalf("deliveries out of creation order: %+v", fx.deliverer.deliveries)
	}
	if fx.deliverer.deliveries[0].Channel != "Support" {
		t.Fatalf("delivered to %q, want Support", fx.deliverer.deliveries[0].Channel)
	}
	if got := fx.lastCheck(t, "support"); !got.Equal(now) {
		t.Fatalf("lastCheck = %v, want %v", got, now)
	}
	if fx.store.saves != 1 {
		t.Fatalf("store saved %d times, want 1", fx.store.saves)
	}
}

func TestTrackingFailureKeepsLastCheck(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t, supportChannel(channel.Entry{Key: "support.tracking", Value: "polling"})...)
	fx.source.err = errors.New("connection refused")

	if err := fx.service.ScanChannels(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}

	if got := fx.lastCheck(t, "support"); !got.Equal(t0) {
		t.Fatalf("lastCheck = %v, want unchanged %v", got, t0)
	}
	if len(fx.deliverer.deliveries) != 1 || !strings.Contains(fx.deliverer.deliveries[0].Message, "connection refused") {
		t.Fatalf("want one error delivery, got %+v", fx.deliverer.deliveries)
	}
}

func TestTrackingWithoutLastCheckStartsNow(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t,
		channel.Entry{Key: "support.name", Value: "Support"},
		channel.Entry{Key: "support.query", Value: "project: SUP"},
		channel.Entry{Key: "support.tracking", Value: "polling"},
	)
	now := t0.Add(time.Minute)
	if err := fx.service.ScanChannels(context.Background(), now); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if len(fx.source.calls) != 0 || len(fx.deliverer.deliveries) != 0 {
		t.Fatalf("expected no fetch and no delivery, got %+v / %+v", fx.source.calls, fx.deliverer.deliveries)
	}
	if got := fx.lastCheck(t, "support"); !got.Equal(now) {
		t.Fatalf("lastCheck = %v, want %v", got, now)
	}
}

func TestInvalidFrequencyIsReportedOnceAndScanContinues(t *testing.T) {
	t.Parallel()
	entries := []channel.Entry{
		{Key: "broken.name", Value: "Broken"},
		{Key: "broken.query", Value: "project: BRK"},
		{Key: "broken.stats", Value: "weekly someday 10:00"},
	}
	entries = append(entries, supportChannel(channel.Entry{Key: "support.tracking", Value: "polling"})...)
	fx := newServiceFixture(t, entries...)

	ctx := context.Background()
	if err := fx.service.ScanChannels(ctx, t0.Add(time.Minute)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if err := fx.service.ScanChannels(ctx, t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}

	var diagnostics int
	for _, d := range fx.deliverer.deliveries {
		if d.Channel == "Broken" {
			diagnostics++
			if !strings.Contains(d.Message, "weekly someday 10:00") {
				t.Fatalf("diagnostic should quote the spec: %q", d.Message)
			}
		}
	}
	if diagnostics != 1 {
		t.Fatalf("got %d diagnostics, want 1", diagnostics)
	}
	if got := fx.lastCheck(t, "support"); !got.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("support channel was not tracked: lastCheck = %v", got)
	}
}

func TestDailyStatsRunsOncePerOccurrence(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t, supportChannel(channel.Entry{Key: "support.stats", Value: "daily 9:00"})...)
	fx.source.results["#Unresolved project: SUP created: Yesterday"] = []issue.Issue{
		{IDReadable: "SUP-7", Tags: []issue.Tag{{Name: "bug"}}},
	}

	ctx := context.Background()
	nine := time.Date(2024, 4, 9, 9, 0, 0, 0, time.Local)
	for _, now := range []time.Time{nine.Add(-time.Minute), nine, nine.Add(30 * time.Second), nine.Add(time.Minute)} {
		if err := fx.service.ScanChannels(ctx, now); err != nil {
			t.Fatalf("ScanChannels: %v", err)
		}
	}

	if len(fx.deliverer.deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(fx.deliverer.deliveries))
	}
	msg := fx.deliverer.deliveries[0].Message
	if !strings.Contains(msg, "Stats for period _Yesterday_") || !strings.Contains(msg, "1 tickets `bug`") {
		t.Fatalf("unexpected stats message: %s", msg)
	}

	wantCalls := []fetchCall{
		{Query: "#Unresolved project: SUP", IDsOnly: true},
		{Query: "#Unresolved project: SUP created: Yesterday"},
		{Query: "#Resolved project: SUP created: Yesterday"},
		{Query: "#Resolved project: SUP resolved date: Yesterday"},
	}
	if len(fx.source.calls) != len(wantCalls) {
		t.Fatalf("fetch calls = %+v", fx.source.calls)
	}
	for i, want := range wantCalls {
		if fx.source.calls[i] != want {
			t.Fatalf("call %d = %+v, want %+v", i, fx.source.calls[i], want)
		}
	}
}

func TestScheduledDigest(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t, supportChannel(channel.Entry{Key: "support.digest", Value: "polling"})...)
	fx.source.results["#Unresolved project: SUP"] = []issue.Issue{{IDReadable: "SUP-3", Summary: "open"}}

	if err := fx.service.ScanChannels(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if len(fx.deliverer.deliveries) != 1 || !strings.HasPrefix(fx.deliverer.deliveries[0].Message, "Digest:") {
		t.Fatalf("unexpected deliveries: %+v", fx.deliverer.deliveries)
	}
}

func TestPanickingChannelDoesNotStopScan(t *testing.T) {
	t.Parallel()
	entries := []channel.Entry{
		{Key: "broken.name", Value: "Broken"},
		{Key: "broken.query", Value: "project: BRK"},
		{Key: "broken.digest", Value: "polling"},
	}
	entries = append(entries, supportChannel(channel.Entry{Key: "support.tracking", Value: "polling"})...)
	fx := newServiceFixture(t, entries...)
	fx.source.panicOn = "#Unresolved project: BRK"

	now := t0.Add(time.Minute)
	if err := fx.service.ScanChannels(context.Background(), now); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if got := fx.lastCheck(t, "support"); !got.Equal(now) {
		t.Fatalf("support channel was not tracked after panic: %v", got)
	}
}

func TestStatsMessageReportsQueryError(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t)
	fx.source.err = errors.New("timeout")
	msg := fx.service.StatsMessage(context.Background(), "project: SUP", "Today")
	if !strings.HasPrefix(msg, "Unable to compute stats") || !strings.Contains(msg, "#Unresolved project: SUP") {
		t.Fatalf("StatsMessage = %q", msg)
	}
}

// slowSource takes delay per query and fails if the caller's context is done.
type slowSource struct {
	mu    sync.Mutex
	delay time.Duration
	errs  []error
}

func (s *slowSource) FetchIssues(ctx context.Context, query string, _ bool) ([]issue.Issue, error) {
	time.Sleep(s.delay)
	err := ctx.Err()
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	if err != nil {
		return nil, &issue.QueryError{Query: query, Err: err}
	}
	return nil, nil
}

func TestScanIsNotAbortedByCallerDeadline(t *testing.T) {
	t.Parallel()
	store := newMemStore(
		channel.Entry{Key: "a.name", Value: "A"},
		channel.Entry{Key: "a.query", Value: "project: A"},
		channel.Entry{Key: "a.lastcheck", Value: t0.Format(channel.TimestampLayout)},
		channel.Entry{Key: "a.tracking", Value: "polling"},
		channel.Entry{Key: "b.name", Value: "B"},
		channel.Entry{Key: "b.query", Value: "project: B"},
		channel.Entry{Key: "b.lastcheck", Value: t0.Format(channel.TimestampLayout)},
		channel.Entry{Key: "b.tracking", Value: "polling"},
	)
	registry := mustLoadRegistry(t, store)
	source := &slowSource{delay: 60 * time.Millisecond}
	deliverer := &fakeDeliverer{}
	service := NewNotificationService(registry, source, deliverer,
		NewFormatter("https://yt.example.com", LinkStyleMarkdown), schedule.NewEvaluator(time.Minute), nullLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	now := t0.Add(time.Minute)
	if err := service.ScanChannels(ctx, now); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}

	if len(source.errs) != 2 {
		t.Fatalf("got %d fetches, want 2", len(source.errs))
	}
	for i, err := range source.errs {
		if err != nil {
			t.Fatalf("fetch %d saw cancelled context: %v", i, err)
		}
	}
	if len(deliverer.deliveries) != 0 {
		t.Fatalf("unexpected deliveries: %+v", deliverer.deliveries)
	}
	if store.saves != 1 {
		t.Fatalf("store saved %d times, want 1", store.saves)
	}

	reloaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, c := range reloaded {
		if !c.LastCheck.Equal(now) {
			t.Fatalf("channel %s persisted lastcheck %v, want %v", c.Key, c.LastCheck, now)
		}
	}
}

func TestRecreatedChannelFiresAgainWithinSameMinute(t *testing.T) {
	t.Parallel()
	fx := newServiceFixture(t, supportChannel(channel.Entry{Key: "support.stats", Value: "daily 9:00"})...)
	ctx := context.Background()
	nine := time.Date(2024, 4, 9, 9, 0, 0, 0, time.Local)

	if err := fx.service.ScanChannels(ctx, nine); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if err := fx.registry.Update(ctx, func(tx *Tx) error {
		if !tx.DeleteChannel("Support") {
			t.Fatal("channel was not deleted")
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := fx.service.ScanChannels(ctx, nine.Add(20*time.Second)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}
	if err := fx.registry.Update(ctx, func(tx *Tx) error {
		if err := tx.CreateChannel("Support", "project: SUP", nine); err != nil {
			return err
		}
		return tx.SetFeatureSpec("Support", channel.FeatureStats, "daily 9:00")
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := fx.service.ScanChannels(ctx, nine.Add(40*time.Second)); err != nil {
		t.Fatalf("ScanChannels: %v", err)
	}

	if len(fx.deliverer.deliveries) != 2 {
		t.Fatalf("got %d deliveries, want 2 (one per channel lifetime)", len(fx.deliverer.deliveries))
	}
	if len(fx.service.fired) != 1 || len(fx.service.reported) != 0 {
		t.Fatalf("stale slots kept: fired=%v reported=%v", fx.service.fired, fx.service.reported)
	}
}
