package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func queueRouter(h *QueueHandler) *gin.Engine {
	router := gin.New()
	router.GET("/queues", h.ListLanes)
	router.GET("/queues/:lane/dead", h.ListDeadLetters)
	router.POST("/queues/:lane/dead/:id/requeue", h.RequeueDeadLetter)
	return router
}

func newQueueFixture(t *testing.T) (*queue.MemoryBroker, *QueueHandler) {
	t.Helper()
	broker := queue.NewMemoryBroker()
	dispatcher := queue.NewDispatcher(broker, nil, zap.NewNop())
	return broker, NewQueueHandler(dispatcher, nil, zap.NewNop())
}

func seedDeadLetter(t *testing.T, broker *queue.MemoryBroker, lane string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(lane, "process_order", map[string]string{"external_order_id": "X-1"})
	require.NoError(t, err)
	job.Attempt = 3
	job.LastError = "erp unreachable"
	require.NoError(t, broker.DeadLetter(context.Background(), job))
	return job
}

func TestQueueHandler_ListLanes(t *testing.T) {
	broker, h := newQueueFixture(t)
	ctx := context.Background()

	job, err := queue.NewJob(queue.LaneProcessOrder, "process_order", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, broker.Enqueue(ctx, job))
	seedDeadLetter(t, broker, queue.LaneSyncStock)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	lanes, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, lanes, 3)

	byLane := make(map[string]map[string]interface{})
	for _, l := range lanes {
		entry := l.(map[string]interface{})
		byLane[entry["lane"].(string)] = entry
	}
	assert.Equal(t, float64(1), byLane[queue.LaneProcessOrder]["depth"])
	assert.Equal(t, float64(0), byLane[queue.LaneProcessOrder]["dead_letters"])
	assert.Equal(t, float64(1), byLane[queue.LaneSyncStock]["dead_letters"])
}

func TestQueueHandler_ListDeadLetters(t *testing.T) {
	broker, h := newQueueFixture(t)
	parked := seedDeadLetter(t, broker, queue.LaneProcessOrder)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues/"+queue.LaneProcessOrder+"/dead", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobs, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, jobs, 1)

	entry := jobs[0].(map[string]interface{})
	assert.Equal(t, parked.ID.String(), entry["id"])
	assert.Equal(t, "process_order", entry["kind"])
	assert.Equal(t, float64(3), entry["attempt"])
	assert.Equal(t, "erp unreachable", entry["last_error"])
}

func TestQueueHandler_ListDeadLetters_ConfiguredLimit(t *testing.T) {
	broker := queue.NewMemoryBroker()
	dispatcher := queue.NewDispatcher(broker, nil, zap.NewNop())
	h := NewQueueHandler(dispatcher, nil, zap.NewNop(), WithDeadLetterLimit(2))

	for i := 0; i < 4; i++ {
		seedDeadLetter(t, broker, queue.LaneSyncStock)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues/"+queue.LaneSyncStock+"/dead", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobs, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, jobs, 2)
}

func TestQueueHandler_ListDeadLetters_UnknownLane(t *testing.T) {
	_, h := newQueueFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues/no-such-lane/dead", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueHandler_RequeueDeadLetter(t *testing.T) {
	broker, h := newQueueFixture(t)
	parked := seedDeadLetter(t, broker, queue.LaneProcessOrder)
	ctx := context.Background()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/queues/"+queue.LaneProcessOrder+"/dead/"+parked.ID.String()+"/requeue", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	depth, err := broker.Depth(ctx, queue.LaneProcessOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	dead, err := broker.DeadLetterDepth(ctx, queue.LaneProcessOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dead)
}

func TestQueueHandler_RequeueDeadLetter_NotFound(t *testing.T) {
	_, h := newQueueFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost,
		"/queues/"+queue.LaneProcessOrder+"/dead/"+uuid.NewString()+"/requeue", nil)
	queueRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
