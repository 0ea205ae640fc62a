package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/test", 200, 100*time.Millisecond)
	RecordRequest("POST", "/test", 201, 50*time.Millisecond)
	RecordRequest("GET", "/test", 404, 10*time.Millisecond)
}

func TestRecordEnqueue(t *testing.T) {
	before := testutil.ToFloat64(notificationsEnqueued.WithLabelValues("email", "deferred"))
	RecordEnqueue("email", "deferred")
	RecordEnqueue("email", "deferred")
	RecordEnqueue("sms", "queued")

	after := testutil.ToFloat64(notificationsEnqueued.WithLabelValues("email", "deferred"))
	if after-before != 2 {
		t.Errorf("expected 2 deferred email enqueues, got %v", after-before)
	}
}

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(notificationsDispatched.WithLabelValues("push", "failed"))
	RecordDispatch("push", "failed")
	RecordDispatch("push", "sent")

	after := testutil.ToFloat64(notificationsDispatched.WithLabelValues("push", "failed"))
	if after-before != 1 {
		t.Errorf("expected 1 failed push dispatch, got %v", after-before)
	}
}

func TestRecordDeliveryLatency(t *testing.T) {
	RecordDeliveryLatency("email", 500*time.Millisecond)
	RecordDeliveryLatency("sms", 2*time.Minute)
}

func TestRecordDrainBatch(t *testing.T) {
	RecordDrainBatch(0)
	RecordDrainBatch(100)
}

func TestRecordTriggerDropped(t *testing.T) {
	before := testutil.ToFloat64(triggerDropped)
	RecordTriggerDropped()
	if got := testutil.ToFloat64(triggerDropped) - before; got != 1 {
		t.Errorf("expected 1 dropped trigger, got %v", got)
	}
}

func TestBreakerMetrics(t *testing.T) {
	SetBreakerState("ses", 1)
	if got := testutil.ToFloat64(breakerState.WithLabelValues("ses")); got != 1 {
		t.Errorf("expected breaker state 1, got %v", got)
	}
	SetBreakerState("ses", 0)
	if got := testutil.ToFloat64(breakerState.WithLabelValues("ses")); got != 0 {
		t.Errorf("expected breaker state 0, got %v", got)
	}

	before := testutil.ToFloat64(breakerRejections.WithLabelValues("ses"))
	RecordBreakerRejection("ses")
	if got := testutil.ToFloat64(breakerRejections.WithLabelValues("ses")) - before; got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestSetSQSMessagesInFlight(t *testing.T) {
	SetSQSMessagesInFlight(10)
	SetSQSMessagesInFlight(5)
	SetSQSMessagesInFlight(0)
	if got := testutil.ToFloat64(sqsMessagesInFlight); got != 0 {
		t.Errorf("expected 0 in flight, got %v", got)
	}
}

func TestRecordIdempotencyHit(t *testing.T) {
	RecordIdempotencyHit()
	RecordIdempotencyHit()
}

func TestRecordRateLimitRejection(t *testing.T) {
	before := testutil.ToFloat64(rateLimitRejections)
	RecordRateLimitRejection()
	if got := testutil.ToFloat64(rateLimitRejections) - before; got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if len(body) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	counter := httpRequestsTotal.WithLabelValues("GET", "/v1/notifications/{id}", "200")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest("GET", "/v1/notifications/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	req = httptest.NewRequest("GET", "/v1/notifications/def", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %v", got)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
