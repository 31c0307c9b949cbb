package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/devshad-01/social-task-sub000/config"
	"github.com/devshad-01/social-task-sub000/internal/db"
	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/mw"
	"github.com/devshad-01/social-task-sub000/internal/notification"
	"github.com/devshad-01/social-task-sub000/internal/presence"
	"github.com/devshad-01/social-task-sub000/internal/push"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

type okTransport struct{}

func (okTransport) Send(context.Context, push.Target, push.Message) push.Outcome {
	return push.Outcome{Result: push.ResultSent, StatusCode: http.StatusCreated}
}

type testServer struct {
	router    *gin.Engine
	store     store.Store
	db        *gorm.DB
	engine    *notification.Engine
	validator *mw.TokenValidator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, gdb.Create(&[]model.User{{ID: "u1"}, {ID: "u2"}, {ID: "root", Role: mw.RoleAdmin}}).Error)

	s := store.NewGormStore(gdb)
	tracker := presence.NewTracker(s, 5*time.Minute, time.Second)
	engine := notification.NewEngine(s, okTransport{}, tracker, notification.Options{})
	tracker.OnOnline(engine.Kick)

	v := mw.NewTokenValidator("test-secret")
	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, StatsCacheTTL: 1}
	router := NewRouter(NewHandler(s, engine, tracker, "BPublicKey"), v, cfg)
	return &testServer{router: router, store: s, db: gdb, engine: engine, validator: v}
}

func (ts *testServer) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := ts.validator.Sign(userID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func subscriptionBody(endpoint string) gin.H {
	return gin.H{"endpoint": endpoint, "keys": gin.H{"p256dh": "BKey", "auth": "secret"}}
}

func TestPutSubscription(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/push/subscriptions", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/push/subscriptions", "u1", "", subscriptionBody("http://insecure.example.com/x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/push/subscriptions", "u1", "", subscriptionBody("https://push.example.com/a"))
	require.Equal(t, http.StatusCreated, w.Code)

	// Same endpoint from another user moves it.
	w = ts.do(t, http.MethodPut, "/api/push/subscriptions", "u2", "", subscriptionBody("https://push.example.com/a"))
	require.Equal(t, http.StatusCreated, w.Code)

	subs, err := ts.store.ListSubscriptions(context.Background(), "u2")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	subs, err = ts.store.ListSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestPutSubscription_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPut, "/api/push/subscriptions", "", "", subscriptionBody("https://push.example.com/a"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteSubscription_OwnOnly(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/push/subscriptions", "u1", "", subscriptionBody("https://push.example.com/a")).Code)

	w := ts.do(t, http.MethodDelete, "/api/push/subscriptions", "u2", "", gin.H{"endpoint": "https://push.example.com/a"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	subs, _ := ts.store.ListSubscriptions(context.Background(), "u1")
	assert.Len(t, subs, 1, "another user's delete is a silent no-op")

	w = ts.do(t, http.MethodDelete, "/api/push/subscriptions", "u1", "", gin.H{"endpoint": "https://push.example.com/a"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	subs, _ = ts.store.ListSubscriptions(context.Background(), "u1")
	assert.Empty(t, subs)
}

func TestGetSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/push/subscriptions", "u1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscriptions":[]}`, w.Body.String())
}

func TestGetVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/push/vapid_public_key", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"BPublicKey"}`, w.Body.String())
}

func TestPostPresence(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/presence", "u1", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/presence", "u1", "", gin.H{"isOnline": true})
	assert.Equal(t, http.StatusNoContent, w.Code)

	p, err := ts.store.GetPresence(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
}

func TestProducers(t *testing.T) {
	ts := newTestServer(t)

	body := gin.H{"category": "task_assigned", "userId": "u1", "title": "New task", "message": "Review the copy"}
	w := ts.do(t, http.MethodPost, "/api/notifications/smart", "u2", "member", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/notifications/smart", "scheduler", mw.RoleService, body)
	require.Equal(t, http.StatusAccepted, w.Code)

	body["category"] = "gossip"
	w = ts.do(t, http.MethodPost, "/api/notifications/smart", "scheduler", mw.RoleService, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body["category"] = "meeting_alert"
	body["class"] = "durable"
	w = ts.do(t, http.MethodPost, "/api/notifications/smart", "scheduler", mw.RoleService, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body["class"] = "Persistent"
	w = ts.do(t, http.MethodPost, "/api/notifications/smart", "scheduler", mw.RoleService, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body["class"] = "ephemeral"
	w = ts.do(t, http.MethodPost, "/api/notifications/smart", "scheduler", mw.RoleService, body)
	assert.Equal(t, http.StatusAccepted, w.Code)
	delete(body, "class")

	w = ts.do(t, http.MethodPost, "/api/notifications/task-due", "scheduler", mw.RoleService, gin.H{
		"userId": "ghost", "taskId": "t1", "taskTitle": "Report", "dueDate": time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/notifications/task-assigned", "scheduler", mw.RoleService, gin.H{
		"userId": "u1", "taskId": "t1", "taskTitle": "Report",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodPost, "/api/notifications/meeting-alert", "scheduler", mw.RoleService, gin.H{
		"userId": "u1", "title": "Standup", "startsAt": time.Now().Add(10 * time.Minute),
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodPost, "/api/notifications/meeting-alert", "scheduler", mw.RoleService, gin.H{
		"userId": "u1", "title": "Standup", "startsAt": time.Now().Add(-time.Minute),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/notifications", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var center struct {
		Notifications []model.OfflineNotification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &center))
	assert.Len(t, center.Notifications, 2, "the meeting alert is ephemeral")
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/push/subscriptions", "u1", "", subscriptionBody("https://push.example.com/a")).Code)
	_, err := ts.engine.SendSmart(context.Background(), notification.SmartRequest{
		Category: notification.CategorySystem, UserID: "u1", Title: "Welcome",
	})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/admin/queue/stats", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/admin/queue/stats", "root", mw.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats notification.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.ByPriority["2"])

	w = ts.do(t, http.MethodPost, "/api/admin/queue/process", "root", mw.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report notification.DrainReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Delivered)

	w = ts.do(t, http.MethodPost, "/api/admin/reminders/overdue", "root", mw.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks":0,"sent":0,"skipped":0}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", "", nil).Code)

	w := ts.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notify_")
}
