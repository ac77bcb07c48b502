package maintenance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darklock-sec/darklock-console/internal/observability"
	"github.com/darklock-sec/darklock-console/internal/shared"
	_ "github.com/darklock-sec/darklock-console/testing"
)

// stubRepo applies UpdateFields the way the SQL upsert does: nil pointers
// preserve stored values.
type stubRepo struct {
	records map[Scope]Record
	history []HistoryEntry
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[Scope]Record)}
}

func (s *stubRepo) GetRecord(ctx context.Context, scope Scope) (Record, bool, error) {
	rec, ok := s.records[scope]
	return rec, ok, nil
}

func (s *stubRepo) ListRecords(ctx context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRepo) UpsertRecord(ctx context.Context, scope Scope, fields UpdateFields) (Record, error) {
	rec, ok := s.records[scope]
	if !ok {
		rec = DisabledRecord(scope)
	}
	if fields.Enabled != nil {
		rec.Enabled = *fields.Enabled
	}
	if fields.Title != nil {
		rec.Title = *fields.Title
	}
	if fields.Subtitle != nil {
		rec.Subtitle = *fields.Subtitle
	}
	if fields.Message != nil {
		rec.Message = *fields.Message
	}
	if fields.ClearScheduledStart {
		rec.ScheduledStart = nil
	} else if fields.ScheduledStart != nil {
		rec.ScheduledStart = fields.ScheduledStart
	}
	if fields.ScheduledEnd != nil {
		rec.ScheduledEnd = fields.ScheduledEnd
	}
	if fields.AdminBypass != nil {
		rec.AdminBypass = *fields.AdminBypass
	}
	if fields.ApplyLocalhost != nil {
		rec.ApplyLocalhost = *fields.ApplyLocalhost
	}
	if fields.BypassIPs != nil {
		rec.BypassIPs = fields.BypassIPs
	}
	if fields.StatusUpdates != nil {
		rec.StatusUpdates = fields.StatusUpdates
	}
	if fields.DiscordAnnounce != nil {
		rec.DiscordAnnounce = *fields.DiscordAnnounce
	}
	rec.UpdatedBy = fields.UpdatedBy
	rec.UpdatedAt = time.Now().UTC()
	s.records[scope] = rec
	return rec, nil
}

func (s *stubRepo) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	s.history = append(s.history, entry)
	return nil
}

func (s *stubRepo) ListHistory(ctx context.Context, scope Scope, limit int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, e := range s.history {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubNotifier struct {
	calls int
}

func (s *stubNotifier) NotifyMaintenance(ctx context.Context, scope Scope, enabled bool, title, message string) error {
	s.calls++
	return nil
}

func newTestService(repo *stubRepo, notifier Notifier, now time.Time) *Service {
	svc := NewService(repo, nil, notifier, nil, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func actor() Actor { return Actor{ID: 7, Email: "ops@darklock.test"} }
func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestGetUnknownScopeDefaultsDisabled(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	rec, err := svc.Get(context.Background(), ScopeWebsite)
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
	assert.Equal(t, ScopeWebsite, rec.Scope)
}

func TestParseScopeClosedSet(t *testing.T) {
	for _, s := range AllScopes() {
		parsed, err := ParseScope(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseScope("mainframe")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpsertDurationAndExplicitEndConflict(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	end := fixedNow().Add(time.Hour)
	_, err := svc.Upsert(context.Background(), ScopeAPI, UpsertInput{
		Enabled:         boolPtr(true),
		DurationMinutes: intPtr(30),
		ScheduledEnd:    &end,
	}, actor())
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpsertDurationSetsEndAndClearsStart(t *testing.T) {
	repo := newStubRepo()
	start := fixedNow().Add(2 * time.Hour)
	repo.records[ScopeAPI] = Record{Scope: ScopeAPI, ScheduledStart: &start}

	svc := newTestService(repo, nil, fixedNow())
	rec, err := svc.Upsert(context.Background(), ScopeAPI, UpsertInput{
		Enabled:         boolPtr(true),
		DurationMinutes: intPtr(45),
	}, actor())
	require.NoError(t, err)
	assert.Nil(t, rec.ScheduledStart)
	require.NotNil(t, rec.ScheduledEnd)
	assert.Equal(t, fixedNow().Add(45*time.Minute), *rec.ScheduledEnd)
}

func TestUpsertPartialPreservesUnsentFields(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, nil, fixedNow())

	_, err := svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		Enabled: boolPtr(true),
		Title:   strPtr("Scheduled maintenance"),
		Message: strPtr("Back soon"),
	}, actor())
	require.NoError(t, err)

	rec, err := svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		Message: strPtr("Taking longer than expected"),
	}, actor())
	require.NoError(t, err)
	assert.True(t, rec.Enabled)
	assert.Equal(t, "Scheduled maintenance", rec.Title)
	assert.Equal(t, "Taking longer than expected", rec.Message)
}

func TestUpsertHistoryActionSelection(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, nil, fixedNow())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, ScopePlatform, UpsertInput{Enabled: boolPtr(true)}, actor())
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, ScopePlatform, UpsertInput{Message: strPtr("update")}, actor())
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, ScopePlatform, UpsertInput{Enabled: boolPtr(false)}, actor())
	require.NoError(t, err)

	require.Len(t, repo.history, 3)
	assert.Equal(t, ActionEnabled, repo.history[0].Action)
	assert.Equal(t, ActionUpdated, repo.history[1].Action)
	assert.Equal(t, ActionDisabled, repo.history[2].Action)
}

func TestUpsertCountsTransitions(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := NewService(newStubRepo(), nil, nil, metrics, nil)
	svc.now = fixedNow
	ctx := context.Background()

	_, err := svc.Upsert(ctx, ScopeAPI, UpsertInput{Enabled: boolPtr(true)}, actor())
	require.NoError(t, err)
	_, err = svc.Extend(ctx, ScopeAPI, 15, actor())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `darklock_maintenance_toggles_total{action="ENABLED",scope="api"} 1`)
	assert.Contains(t, body, `darklock_maintenance_toggles_total{action="EXTENDED",scope="api"} 1`)
}

func TestUpsertSanitizesOperatorText(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	rec, err := svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		Enabled: boolPtr(true),
		Title:   strPtr(`<script>alert(1)</script>Planned work`),
	}, actor())
	require.NoError(t, err)
	assert.Equal(t, "Planned work", rec.Title)
}

func TestUpsertRejectsInvalidBypassIP(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	_, err := svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		BypassIPs: []string{"not-an-ip"},
	}, actor())
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpsertAnnouncesWhenRequested(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(newStubRepo(), notifier, fixedNow())

	_, err := svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		Enabled:         boolPtr(true),
		DiscordAnnounce: boolPtr(true),
	}, actor())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)

	_, err = svc.Upsert(context.Background(), ScopeWebsite, UpsertInput{
		Enabled: boolPtr(false),
	}, actor())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
}

func TestStatusUpdatesPrependAndCap(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, nil, fixedNow())
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := svc.AddStatusUpdate(ctx, ScopeAPI, "note "+string(rune('a'+i)), actor())
		require.NoError(t, err)
	}
	rec := repo.records[ScopeAPI]
	require.Len(t, rec.StatusUpdates, 10)
	// Newest first; the very first note fell off.
	assert.Equal(t, "note k", rec.StatusUpdates[0].Message)
	assert.Equal(t, "note b", rec.StatusUpdates[9].Message)
	// Status notes are not transitions.
	assert.Empty(t, repo.history)
}

func TestStatusUpdateEmptyAfterSanitize(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	_, err := svc.AddStatusUpdate(context.Background(), ScopeAPI, "<script></script>", actor())
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestExtendFromCurrentEnd(t *testing.T) {
	repo := newStubRepo()
	end := fixedNow().Add(30 * time.Minute)
	repo.records[ScopeAPI] = Record{Scope: ScopeAPI, Enabled: true, ScheduledEnd: &end}

	svc := newTestService(repo, nil, fixedNow())
	rec, err := svc.Extend(context.Background(), ScopeAPI, 15, actor())
	require.NoError(t, err)
	require.NotNil(t, rec.ScheduledEnd)
	assert.Equal(t, end.Add(15*time.Minute), *rec.ScheduledEnd)

	// A second extension accumulates on the new end.
	rec, err = svc.Extend(context.Background(), ScopeAPI, 15, actor())
	require.NoError(t, err)
	assert.Equal(t, end.Add(30*time.Minute), *rec.ScheduledEnd)

	require.Len(t, repo.history, 2)
	assert.Equal(t, ActionExtended, repo.history[0].Action)
	assert.Equal(t, 15, repo.history[0].DurationMinutes)
}

func TestExtendWithoutEndStartsFromNow(t *testing.T) {
	repo := newStubRepo()
	repo.records[ScopeAPI] = Record{Scope: ScopeAPI, Enabled: true}

	svc := newTestService(repo, nil, fixedNow())
	rec, err := svc.Extend(context.Background(), ScopeAPI, 20, actor())
	require.NoError(t, err)
	require.NotNil(t, rec.ScheduledEnd)
	assert.Equal(t, fixedNow().Add(20*time.Minute), *rec.ScheduledEnd)
}

func TestExtendRejectsNonPositive(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, fixedNow())
	_, err := svc.Extend(context.Background(), ScopeAPI, 0, actor())
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestListAllCoversEveryScope(t *testing.T) {
	repo := newStubRepo()
	repo.records[ScopeWebsite] = Record{Scope: ScopeWebsite, Enabled: true}

	svc := newTestService(repo, nil, fixedNow())
	views, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, views, len(AllScopes()))

	pending, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ScopeWebsite, pending[0].Scope)
}

func TestViewDerivedFields(t *testing.T) {
	now := fixedNow()
	start := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	scheduled := NewView(Record{Scope: ScopeAPI, Enabled: true, ScheduledStart: &start}, now)
	assert.True(t, scheduled.IsScheduled)
	assert.Equal(t, time.Hour.Milliseconds(), scheduled.CountdownMillis)

	// A past end is advisory: the record stays enabled until an operator
	// disables it.
	ended := NewView(Record{Scope: ScopeAPI, Enabled: true, ScheduledEnd: &past}, now)
	assert.True(t, ended.HasEnded)
	assert.True(t, ended.Enabled)
}

func TestIsBypassed(t *testing.T) {
	record := Record{
		Scope:       ScopeWebsite,
		Enabled:     true,
		AdminBypass: true,
		BypassIPs:   []string{"203.0.113.9"},
	}

	assert.True(t, IsBypassed(record, "198.51.100.1", true), "operator with admin bypass")
	assert.False(t, IsBypassed(record, "198.51.100.1", false), "plain visitor")
	assert.True(t, IsBypassed(record, "127.0.0.1", false), "localhost exempt by default")
	assert.True(t, IsBypassed(record, "::1", false), "ipv6 loopback exempt by default")
	assert.True(t, IsBypassed(record, "203.0.113.9", false), "listed ip")

	record.ApplyLocalhost = true
	record.AdminBypass = false
	assert.False(t, IsBypassed(record, "127.0.0.1", false), "localhost blocked when maintenance applies there")
	assert.False(t, IsBypassed(record, "127.0.0.1", true), "operator without admin bypass")
}
