package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/mirror"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/queue"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/remote"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/retry"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

type websiteCall struct {
	path    string
	payload map[string]any
}

// website emula la API remota y registra lo recibido.
type website struct {
	mu      sync.Mutex
	calls   []websiteCall
	respond func(call websiteCall) (int, string)
	server  *httptest.Server
}

func newWebsite(t *testing.T, respond func(call websiteCall) (int, string)) *website {
	t.Helper()
	w := &website{respond: respond}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		call := websiteCall{path: r.URL.Path, payload: payload}

		w.mu.Lock()
		w.calls = append(w.calls, call)
		w.mu.Unlock()

		status, body := w.respond(call)
		rw.WriteHeader(status)
		_, _ = io.WriteString(rw, body)
	}))
	t.Cleanup(w.server.Close)
	return w
}

func (w *website) Calls() []websiteCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]websiteCall(nil), w.calls...)
}

func accept(websiteCall) (int, string) {
	return http.StatusOK, `{"message":"Order updated"}`
}

type recordingDatastore struct {
	mu    sync.Mutex
	calls []map[string]any
	err   error
}

func (d *recordingDatastore) Update(_ context.Context, _ string, match, fields map[string]any) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	row := map[string]any{}
	for k, v := range match {
		row[k] = v
	}
	for k, v := range fields {
		row[k] = v
	}
	d.calls = append(d.calls, row)
	return 1, nil
}

type fixture struct {
	svc     *SyncService
	site    *website
	client  *remote.Client
	queue   *queue.Queue
	mirrorD *recordingDatastore
}

func newFixture(t *testing.T, online bool, respond func(websiteCall) (int, string)) *fixture {
	t.Helper()
	site := newWebsite(t, respond)

	client, err := remote.NewClient(remote.Config{
		BaseURL:        site.server.URL,
		APIKey:         "secret-key",
		AttemptTimeout: 2 * time.Second,
		Policy:         retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	kv, err := storage.NewFileKV(t.TempDir())
	require.NoError(t, err)

	ds := &recordingDatastore{}
	updater := mirror.NewUpdater(ds)
	q := queue.New(kv, client, updater)
	require.NoError(t, q.Load(context.Background()))

	return &fixture{
		svc:     NewSyncService(client, updater, q, online),
		site:    site,
		client:  client,
		queue:   q,
		mirrorD: ds,
	}
}

func TestCancel_HappyPath(t *testing.T) {
	f := newFixture(t, true, accept)

	result := f.svc.Cancel(context.Background(), "rest-1", "100047", "out of stock", "")

	require.True(t, result.Success, result.Message)
	assert.False(t, result.Queued)
	assert.Equal(t, "Order updated", result.Message)

	calls := f.site.Calls()
	require.Len(t, calls, 1)
	body := calls[0].payload
	assert.Equal(t, "/order-cancel", calls[0].path)
	assert.Equal(t, "#100047", body["order_number"])
	assert.Equal(t, "100047", body["order_number_digits"])
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "out of stock", body["cancel_reason"])
	require.Contains(t, body, "cancelled_at")
	assert.Equal(t, body["timestamp"], body["cancelled_at"])

	require.Len(t, f.mirrorD.calls, 1)
	row := f.mirrorD.calls[0]
	assert.Equal(t, "100047", row["order_number"])
	assert.Equal(t, "cancelled", row["status"])
	assert.Equal(t, "rest-1", row["restaurant_id"])
}

func TestDispatch_UsesCachedDigitsPreference(t *testing.T) {
	f := newFixture(t, true, func(call websiteCall) (int, string) {
		if strings.HasPrefix(call.payload["order_number"].(string), "#") {
			return http.StatusNotFound, `{"error":"Order not found"}`
		}
		return http.StatusOK, `{"message":"ok"}`
	})
	ctx := context.Background()

	first := f.svc.UpdateStatus(ctx, "rest-1", "100049", models.StatusReady, "")
	require.True(t, first.Success, first.Message)
	require.Equal(t, models.FormDigits, f.client.PreferredForm())
	before := len(f.site.Calls())

	result := f.svc.Dispatch(ctx, "rest-1", "#100050", "")

	require.True(t, result.Success, result.Message)
	calls := f.site.Calls()[before:]
	require.Len(t, calls, 1)
	assert.Equal(t, "/order-dispatch", calls[0].path)
	assert.Equal(t, "100050", calls[0].payload["order_number"])
}

func TestDispatch_OfflineThenReconnect(t *testing.T) {
	f := newFixture(t, false, accept)
	ctx := context.Background()

	result := f.svc.Dispatch(ctx, "rest-1", "100051", "")

	assert.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.Equal(t, 1, f.svc.PendingCount())
	assert.Empty(t, f.site.Calls())
	assert.Empty(t, f.mirrorD.calls)

	f.svc.SetOnline(true)
	flushed, err := f.svc.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, flushed.Synced)
	assert.Equal(t, 0, f.svc.PendingCount())
	calls := f.site.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/order-dispatch", calls[0].path)
	require.Len(t, f.mirrorD.calls, 1)
	assert.Equal(t, "dispatched", f.mirrorD.calls[0]["status"])
}

func TestUpdateStatus_MirrorFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, true, accept)
	f.mirrorD.err = errors.New("database is locked")

	result := f.svc.UpdateStatus(context.Background(), "rest-1", "100047", models.StatusPreparing, "")

	assert.True(t, result.Success)
	assert.Len(t, f.site.Calls(), 1)
}

func TestUpdateStatus_OnlineFailureIsNotQueued(t *testing.T) {
	f := newFixture(t, true, func(websiteCall) (int, string) {
		return http.StatusForbidden, `{"message":"restaurant disabled"}`
	})

	result := f.svc.UpdateStatus(context.Background(), "rest-1", "100047", models.StatusReady, "")

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.Contains(t, result.Message, "restaurant disabled")
	assert.Equal(t, 0, f.svc.PendingCount())
	assert.Empty(t, f.mirrorD.calls)
}

func TestUpdateStatus_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, true, accept)
	ctx := context.Background()

	noTenant := f.svc.UpdateStatus(ctx, "", "100047", models.StatusReady, "")
	assert.False(t, noTenant.Success)
	assert.Equal(t, http.StatusUnauthorized, noTenant.StatusCode)
	assert.Contains(t, noTenant.Message, "No active restaurant")

	badStatus := f.svc.UpdateStatus(ctx, "rest-1", "100047", models.StatusDispatched, "")
	assert.False(t, badStatus.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, badStatus.StatusCode)

	noNumber := f.svc.Dispatch(ctx, "rest-1", " # ", "")
	assert.False(t, noNumber.Success)

	assert.Empty(t, f.site.Calls())
}

func TestFlush_OfflineDoesNothing(t *testing.T) {
	f := newFixture(t, false, accept)
	ctx := context.Background()
	f.svc.Dispatch(ctx, "rest-1", "100051", "")

	result, err := f.svc.Flush(ctx)

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, 1, result.Remaining)
	assert.Empty(t, f.site.Calls())
}

func TestSetOnline_NotifiesOnReconnectOnly(t *testing.T) {
	f := newFixture(t, false, accept)
	var notified int32
	f.svc.OnReconnect(func() { atomic.AddInt32(&notified, 1) })

	f.svc.SetOnline(false)
	f.svc.SetOnline(true)
	f.svc.SetOnline(true)
	f.svc.SetOnline(false)

	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
	assert.False(t, f.svc.Online())
}

func TestForgetTenant(t *testing.T) {
	f := newFixture(t, false, accept)
	ctx := context.Background()
	f.svc.Dispatch(ctx, "rest-1", "1", "")
	f.svc.Dispatch(ctx, "rest-2", "2", "")

	dropped, err := f.svc.ForgetTenant(ctx, "rest-1")

	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	pending := f.svc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "rest-2", pending[0].Payload.TenantID)
}

type gatedSender struct {
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (g *gatedSender) Send(ctx context.Context, _ models.EndpointKind, _ models.StatusChangeRequest, _ ...remote.SendOption) (*remote.Response, error) {
	atomic.AddInt32(&g.calls, 1)
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &remote.Response{StatusCode: http.StatusOK, Message: "ok"}, nil
}

func newGatedService(t *testing.T) (*SyncService, *gatedSender) {
	t.Helper()
	kv, err := storage.NewFileKV(t.TempDir())
	require.NoError(t, err)
	sender := &gatedSender{entered: make(chan struct{}, 2), release: make(chan struct{})}
	return NewSyncService(sender, noopMirror{}, queue.New(kv, sender, noopMirror{}), true), sender
}

type noopMirror struct{}

func (noopMirror) Apply(context.Context, string, models.Status, string) {}

func TestExecute_CoalescesDuplicateInFlightCalls(t *testing.T) {
	svc, sender := newGatedService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = svc.Dispatch(ctx, "rest-1", "#100050", "").Success
	}()
	<-sender.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = svc.Dispatch(ctx, "rest-1", "100050", "").Success
	}()
	time.Sleep(50 * time.Millisecond)

	close(sender.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
	assert.Equal(t, []bool{true, true}, results)
}

func TestExecute_DifferentReasonsAreNotCoalesced(t *testing.T) {
	svc, sender := newGatedService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, reason := range []string{"out of stock", "customer request"} {
		wg.Add(1)
		go func(reason string) {
			defer wg.Done()
			svc.Cancel(ctx, "rest-1", "100047", reason, "")
		}(reason)
	}
	<-sender.entered
	<-sender.entered

	close(sender.release)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&sender.calls))
}

func TestExecute_CallerCancellationDoesNotAbortSend(t *testing.T) {
	callerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits int32
	f := newFixture(t, true, func(websiteCall) (int, string) {
		if atomic.AddInt32(&hits, 1) == 1 {
			cancel()
			return http.StatusServiceUnavailable, "try later"
		}
		return http.StatusOK, `{"message":"Order updated"}`
	})

	result := f.svc.UpdateStatus(callerCtx, "rest-1", "100047", models.StatusReady, "")

	require.True(t, result.Success, result.Message)
	assert.Len(t, f.site.Calls(), 2)
	require.Len(t, f.mirrorD.calls, 1)
	assert.Equal(t, "ready", f.mirrorD.calls[0]["status"])
}

func TestExecute_CoalescedCallerIsNotFailedByFirstCallerCancel(t *testing.T) {
	svc, sender := newGatedService(t)
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	results := make([]bool, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = svc.Dispatch(firstCtx, "rest-1", "100050", "").Success
	}()
	<-sender.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = svc.Dispatch(context.Background(), "rest-1", "100050", "").Success
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	close(sender.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
	assert.Equal(t, []bool{true, true}, results)
}
