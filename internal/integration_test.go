package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/devshad-01/social-task-sub000/config"
	"github.com/devshad-01/social-task-sub000/internal/api"
	"github.com/devshad-01/social-task-sub000/internal/db"
	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/mw"
	"github.com/devshad-01/social-task-sub000/internal/notification"
	"github.com/devshad-01/social-task-sub000/internal/presence"
	"github.com/devshad-01/social-task-sub000/internal/push"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

// pushService stands in for a browser vendor's push endpoint.
type pushService struct {
	mu       sync.Mutex
	received []*http.Request
}

func (p *pushService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.received = append(p.received, r.Clone(context.Background()))
	p.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/gone") {
		w.WriteHeader(http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (p *pushService) delivered() []*http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*http.Request
	for _, r := range p.received {
		if !strings.HasSuffix(r.URL.Path, "/gone") {
			out = append(out, r)
		}
	}
	return out
}

func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func call(t *testing.T, router *gin.Engine, v *mw.TokenValidator, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	token, err := v.Sign(userID, role, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestPersistentDeliveryLifecycle follows one persistent notification from a
// producer call through a pruned stale endpoint to delivery on a fresh
// endpoint once the user comes back online.
func TestPersistentDeliveryLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	testDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))
	require.NoError(t, testDB.Create(&model.User{ID: "u1", Email: "u1@example.com"}).Error)

	pushSvc := &pushService{}
	server := httptest.NewServer(pushSvc)
	defer server.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	appStore := store.NewGormStore(testDB)
	transport := push.NewTransport(nil, push.Options{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subject:         "mailto:ops@example.com",
		Timeout:         5 * time.Second,
	})
	tracker := presence.NewTracker(appStore, 5*time.Minute, time.Second)
	engine := notification.NewEngine(appStore, transport, tracker, notification.Options{})
	tracker.OnOnline(engine.Kick)

	v := mw.NewTokenValidator("integration-secret")
	router := api.NewRouter(api.NewHandler(appStore, engine, tracker, transport.PublicKey()), v,
		config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, StatsCacheTTL: 1})

	// --- Step 1: a stale device and a producer call ---
	p256dh, auth := browserKeys(t)
	w := call(t, router, v, http.MethodPut, "/api/push/subscriptions", "u1", "", gin.H{
		"endpoint": server.URL + "/push/gone",
		"keys":     gin.H{"p256dh": p256dh, "auth": auth},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, router, v, http.MethodPost, "/api/notifications/task-assigned", "task-service", mw.RoleService, gin.H{
		"userId": "u1", "taskId": "t42", "taskTitle": "Schedule launch posts", "assignedBy": "dana",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	// --- Step 2: the manual drain prunes the stale device ---
	w = call(t, router, v, http.MethodPost, "/api/admin/queue/process", "root", mw.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report notification.DrainReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, 0, report.Delivered)

	subs, err := appStore.ListSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	// --- Step 3: the user re-subscribes and comes online ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = notification.NewScheduler(engine, time.Hour, time.Hour).Serve(ctx) }()

	p256dh, auth = browserKeys(t)
	w = call(t, router, v, http.MethodPut, "/api/push/subscriptions", "u1", "", gin.H{
		"endpoint": server.URL + "/push/fresh",
		"keys":     gin.H{"p256dh": p256dh, "auth": auth},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = call(t, router, v, http.MethodPost, "/api/presence", "u1", "", gin.H{"isOnline": true})
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Eventually(t, func() bool {
		return len(pushSvc.delivered()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// --- Verification ---
	req := pushSvc.delivered()[0]
	assert.Equal(t, "aes128gcm", req.Header.Get("Content-Encoding"))
	assert.Equal(t, "high", req.Header.Get("Urgency"))
	assert.NotEqual(t, "0", req.Header.Get("TTL"))
	assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "vapid "))

	w = call(t, router, v, http.MethodGet, "/api/notifications", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var center struct {
		Notifications []model.OfflineNotification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &center))
	require.Len(t, center.Notifications, 1)
	assert.True(t, center.Notifications[0].IsDelivered)
	assert.NotNil(t, center.Notifications[0].DeliveredAt)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Zero(t, stats.Queued)
	assert.Zero(t, stats.Failed)
}
