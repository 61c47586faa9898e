package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagmirror/internal/config"
	"tagmirror/internal/domain"
)

// The fakes below implement just enough of the domain ports to exercise the
// handlers through real domain services.

type fakeContent struct{ m map[string]*domain.Status }

func (f *fakeContent) Put(_ context.Context, s *domain.Status) error {
	f.m[s.ID] = s
	return nil
}

func (f *fakeContent) Get(_ context.Context, id string) (*domain.Status, error) {
	s, ok := f.m[id]
	if !ok {
		return nil, domain.ErrStatusNotFound
	}
	return s, nil
}

type fakeIndex struct{ ids []string }

func (f *fakeIndex) InsertStatuses(context.Context, []*domain.Status) error { return nil }
func (f *fakeIndex) SearchStatuses(context.Context, []string, int) ([]string, error) {
	return f.ids, nil
}
func (f *fakeIndex) PopularStatuses(context.Context, []string, time.Time, int) ([]string, error) {
	return f.ids, nil
}
func (f *fakeIndex) ListStale(context.Context, time.Time, time.Time, int) ([]string, error) {
	return nil, nil
}
func (f *fakeIndex) PopularTags(context.Context, int, int) ([]domain.TagCount, error) {
	return []domain.TagCount{{Name: "painting", Count: 3}}, nil
}
func (f *fakeIndex) CountStatuses(context.Context) (int, error) { return len(f.ids), nil }

type fakeWatermarks struct{}

func (fakeWatermarks) RecentStatusID(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (fakeWatermarks) SetRecentStatusID(context.Context, string, string) error { return nil }

type fakeHashtags struct{ suggested []string }

func (f *fakeHashtags) List(context.Context) ([]string, error) {
	return []string{"painting"}, nil
}
func (f *fakeHashtags) IncrementVote(_ context.Context, name string) error {
	f.suggested = append(f.suggested, name)
	return nil
}

type fakeClient struct{}

func (fakeClient) GetTagTimeline(context.Context, string, string) ([]*domain.Status, error) {
	return nil, nil
}
func (fakeClient) GetStatus(context.Context, string) (*domain.Status, error) {
	return nil, domain.ErrStatusNotFound
}

func newTestServer(t *testing.T, createdAt time.Time) (*Server, *fakeHashtags) {
	t.Helper()

	raw := []byte(`{"id": "100", "created_at": "` + createdAt.UTC().Format(time.RFC3339) + `", "account": {"id": "1", "acct": "a@b"}, "tags": [{"name": "painting"}]}`)
	status, err := domain.DecodeStatus(raw)
	require.NoError(t, err)

	content := &fakeContent{m: map[string]*domain.Status{"100": status}}
	index := &fakeIndex{ids: []string{"100"}}
	hashtags := &fakeHashtags{}

	logger := slog.New(slog.DiscardHandler)
	statusService := domain.NewStatusService(fakeClient{}, content, index, fakeWatermarks{}, hashtags, logger)
	hashtagService := domain.NewHashtagService(hashtags, logger)

	cfg := &config.Config{Port: 0}
	cfg.Timeline.UpdateFrequency = 15 * time.Minute
	cfg.Timeline.StaleWhileRevalidate = 5 * time.Minute
	cfg.Timeline.StatusesCount = 100

	return NewServer(cfg, statusService, hashtagService, logger), hashtags
}

func TestTimelineServesFreshContent(t *testing.T) {
	createdAt := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)
	server, _ := newTestServer(t, createdAt)

	req := httptest.NewRequest(http.MethodGet, "/timeline?tags=painting", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=900, stale-while-revalidate=300", rec.Header().Get("Cache-Control"))
	assert.Equal(t, createdAt.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))

	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
}

func TestTimelineNotModified(t *testing.T) {
	createdAt := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)
	server, _ := newTestServer(t, createdAt)

	req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
	req.Header.Set("If-Modified-Since", createdAt.Format(http.TimeFormat))
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestTimelineModifiedOneSecondEarlier(t *testing.T) {
	createdAt := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)
	server, _ := newTestServer(t, createdAt)

	req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
	req.Header.Set("If-Modified-Since", createdAt.Add(-time.Second).Format(http.TimeFormat))
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimelineRejectsBadLimit(t *testing.T) {
	server, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/timeline?limit=zero", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestTag(t *testing.T) {
	server, hashtags := newTestServer(t, time.Now())

	form := url.Values{"hashtag": {"#Sculpting"}}
	req := httptest.NewRequest(http.MethodPost, "/tags", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	// The leading '#' is stripped before the vote is recorded.
	assert.Equal(t, []string{"Sculpting"}, hashtags.suggested)
}

func TestListTags(t *testing.T) {
	server, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/tags", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hashtags": ["painting"]}`, rec.Body.String())
}

func TestPopularTags(t *testing.T) {
	server, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/tags/popular", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "7")
	assert.Contains(t, resp, "30")
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
