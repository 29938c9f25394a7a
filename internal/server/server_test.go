package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/server/api"
	"civicease/civicfeed/internal/server/storage"
	"civicease/civicfeed/internal/testsupport"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *database.DB) {
	t.Helper()
	db := testsupport.MustOpenDB(t)
	router := NewRouter(storage.NewRepository(db), zerolog.Nop(), apiKey, func() time.Time { return testNow })
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, db
}

func do(t *testing.T, method, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Request-Id"))

	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements", "", map[string]string{"X-API-Key": "s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAnnouncementsPaginatesByCategory(t *testing.T) {
	srv, db := newTestServer(t, "")
	for _, title := range []string{"a", "b", "c"} {
		testsupport.MustCreatePost(t, db, title, 1)
	}
	testsupport.MustCreatePost(t, db, "other", 2)

	var page api.ListResponse
	resp := do(t, http.MethodGet, srv.URL+"/v1/announcements?category_id=1&limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].Title)
	assert.Equal(t, "b", page.Items[1].Title)
	require.NotNil(t, page.NextCursor)

	var next api.ListResponse
	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements?category_id=1&limit=2&cursor="+url.QueryEscape(*page.NextCursor), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	require.Len(t, next.Items, 1)
	assert.Equal(t, "c", next.Items[0].Title)
	assert.Nil(t, next.NextCursor)
	require.NotNil(t, next.Items[0].CategoryID)
	assert.Equal(t, int64(1), *next.Items[0].CategoryID)
}

func TestListAnnouncementsRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t, "")
	for _, q := range []string{"limit=0", "limit=abc", "limit=100000", "category_id=-1", "cursor=%25%25", "since=yesterday"} {
		resp := do(t, http.MethodGet, srv.URL+"/v1/announcements?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestGetAnnouncement(t *testing.T) {
	srv, db := newTestServer(t, "")
	id := testsupport.MustCreatePost(t, db, "Ayushman card", 3)

	var a api.Announcement
	resp := do(t, http.MethodGet, srv.URL+"/v1/announcements/"+itoa(id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
	assert.Equal(t, "Ayushman card", a.Title)

	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/announcements/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutReminderUpserts(t *testing.T) {
	srv, db := newTestServer(t, "")
	user := testsupport.MustCreateUser(t, db, "nisha")
	post := testsupport.MustCreatePost(t, db, "Jan Dhan account", 4)

	body := `{"user_id": ` + itoa(user) + `, "post_id": ` + itoa(post) + `, "content": "first", "reminder_enabled": true, "reminder_at": "2026-04-02T09:00:00Z"}`
	resp := do(t, http.MethodPut, srv.URL+"/v1/reminders", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first api.Reminder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	assert.True(t, first.Enabled)
	assert.False(t, first.Sent)
	require.NotNil(t, first.DueAt)

	require.NoError(t, db.MarkReminderSent(context.Background(), first.ID))

	body = strings.Replace(body, `"first"`, `"second"`, 1)
	resp = do(t, http.MethodPut, srv.URL+"/v1/reminders", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second api.Reminder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "second", second.Content)
	assert.False(t, second.Sent)

	for _, bad := range []string{
		`{"post_id": 1}`,
		`{"user_id": 1, "post_id": 1, "reminder_enabled": true}`,
		`{"user_id": 1, "post_id": 1, "unknown": true}`,
		`not json`,
	} {
		resp = do(t, http.MethodPut, srv.URL+"/v1/reminders", bad, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestNotificationsDueAndRead(t *testing.T) {
	srv, db := newTestServer(t, "")
	ctx := context.Background()
	user := testsupport.MustCreateUser(t, db, "farah")
	post := testsupport.MustCreatePost(t, db, "Pension camp", 5)

	due, err := db.CreateNotification(ctx, user, post, "due", testNow.Add(-time.Minute))
	require.NoError(t, err)
	_, err = db.CreateNotification(ctx, user, post, "future", testNow.Add(time.Hour))
	require.NoError(t, err)

	var got struct {
		Items []struct {
			ID      int64  `json:"id"`
			Message string `json:"message"`
		} `json:"items"`
	}
	resp := do(t, http.MethodGet, srv.URL+"/v1/users/"+itoa(user)+"/notifications", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, due, got.Items[0].ID)

	resp = do(t, http.MethodPost, srv.URL+"/v1/notifications/"+itoa(due)+"/read", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/users/"+itoa(user)+"/notifications", "", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got.Items)

	resp = do(t, http.MethodPost, srv.URL+"/v1/notifications/999/read", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunServer(ctx, http.NotFoundHandler(), "127.0.0.1:0", zerolog.Nop())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
