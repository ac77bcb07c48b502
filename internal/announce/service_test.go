package announce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darklock-sec/darklock-console/internal/shared"
	_ "github.com/darklock-sec/darklock-console/testing"
)

type stubAnnounceRepo struct {
	items  map[int64]Announcement
	nextID int64
}

func newStubAnnounceRepo() *stubAnnounceRepo {
	return &stubAnnounceRepo{items: make(map[int64]Announcement), nextID: 1}
}

func (s *stubAnnounceRepo) List(ctx context.Context, publishedOnly bool) ([]Announcement, error) {
	out := make([]Announcement, 0, len(s.items))
	for _, a := range s.items {
		if publishedOnly && !a.Published() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAnnounceRepo) Get(ctx context.Context, id int64) (Announcement, error) {
	a, ok := s.items[id]
	if !ok {
		return Announcement{}, shared.ErrNotFound
	}
	return a, nil
}

func (s *stubAnnounceRepo) Create(ctx context.Context, a Announcement) (Announcement, error) {
	a.ID = s.nextID
	s.nextID++
	s.items[a.ID] = a
	return a, nil
}

func (s *stubAnnounceRepo) Update(ctx context.Context, id int64, title, body *string, pinned *bool) (Announcement, error) {
	a, ok := s.items[id]
	if !ok {
		return Announcement{}, shared.ErrNotFound
	}
	if title != nil {
		a.Title = *title
	}
	if body != nil {
		a.Body = *body
	}
	if pinned != nil {
		a.Pinned = *pinned
	}
	s.items[id] = a
	return a, nil
}

func (s *stubAnnounceRepo) SetPublishedAt(ctx context.Context, id int64, at *time.Time) (Announcement, error) {
	a, ok := s.items[id]
	if !ok {
		return Announcement{}, shared.ErrNotFound
	}
	a.PublishedAt = at
	s.items[id] = a
	return a, nil
}

func (s *stubAnnounceRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type captureNotifier struct {
	titles []string
	err    error
}

func (c *captureNotifier) NotifyAnnouncement(ctx context.Context, title, body string) error {
	if c.err != nil {
		return c.err
	}
	c.titles = append(c.titles, title)
	return nil
}

func author() Actor { return Actor{ID: 2, Email: "mod@darklock.test"} }

func TestCreateSanitizesTitleAndBody(t *testing.T) {
	svc := NewService(newStubAnnounceRepo(), nil, nil, nil)

	created, err := svc.Create(context.Background(), author(), CreateInput{
		Title: `<b>Incident</b> resolved`,
		Body:  `All clear. <script>alert(1)</script><b>Thanks for waiting.</b>`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Incident resolved", created.Title, "titles are plain text")
	assert.Equal(t, "All clear. <b>Thanks for waiting.</b>", created.Body, "bodies keep basic formatting")
}

func TestCreateRequiresNonEmptyTitle(t *testing.T) {
	svc := NewService(newStubAnnounceRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), author(), CreateInput{Title: "<script>x</script>"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPublishOnceAndNotify(t *testing.T) {
	repo := newStubAnnounceRepo()
	notifier := &captureNotifier{}
	svc := NewService(repo, nil, notifier, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, author(), CreateInput{Title: "Scheduled downtime"})
	require.NoError(t, err)

	published, err := svc.Publish(ctx, author(), created.ID, true)
	require.NoError(t, err)
	assert.True(t, published.Published())
	assert.Equal(t, []string{"Scheduled downtime"}, notifier.titles)

	_, err = svc.Publish(ctx, author(), created.ID, false)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPublishSurvivesNotifierFailure(t *testing.T) {
	repo := newStubAnnounceRepo()
	svc := NewService(repo, nil, &captureNotifier{err: shared.ErrUpstreamUnavailable}, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, author(), CreateInput{Title: "Heads up"})
	require.NoError(t, err)

	published, err := svc.Publish(ctx, author(), created.ID, true)
	require.NoError(t, err)
	assert.True(t, published.Published())
}

func TestUnpublishReturnsToDraft(t *testing.T) {
	repo := newStubAnnounceRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, author(), CreateInput{Title: "Heads up"})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, author(), created.ID, false)
	require.NoError(t, err)

	draft, err := svc.Unpublish(ctx, author(), created.ID)
	require.NoError(t, err)
	assert.False(t, draft.Published())

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)
}
