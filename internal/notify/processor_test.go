package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/channel"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/memstore"
	"github.com/lalithlochan/courier/internal/preference"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSender counts deliveries per notification and can be told to fail
// or panic.
type recordingSender struct {
	mu        sync.Mutex
	provider  string
	sends     map[string]int
	addresses []string
	last      channel.Content
	err       error
	panicWith any
}

func newRecordingSender(provider string) *recordingSender {
	return &recordingSender{provider: provider, sends: make(map[string]int)}
}

func (s *recordingSender) Send(_ context.Context, address string, content channel.Content) (channel.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if address == "" {
		return channel.Result{}, channel.ErrMissingAddress
	}
	if s.err != nil {
		return channel.Result{}, &channel.DeliveryError{Provider: s.provider, Err: s.err}
	}
	s.sends[content.NotificationID]++
	s.addresses = append(s.addresses, address)
	s.last = content
	return channel.Result{ProviderName: s.provider, ProviderMessageID: "msg-" + content.NotificationID}, nil
}

func (s *recordingSender) count(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends[id.String()]
}

type captureTrigger struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (t *captureTrigger) Submit(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = append(t.ids, id)
	return true
}

func (t *captureTrigger) submitted() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uuid.UUID(nil), t.ids...)
}

type harness struct {
	p        *Processor
	store    *memstore.Store
	resolver *preference.Resolver
	clock    *fakeClock
	trigger  *captureTrigger
	push     channel.Sender
	email    *recordingSender
	sms      *recordingSender
}

// noon UTC is outside the default 22:00-08:00 quiet hours.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type pushTransport struct{}

func (pushTransport) Name() string { return "test-push" }
func (pushTransport) Push(_ context.Context, msg channel.PushMessage) (string, error) {
	return "push-" + msg.Token, nil
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	clock := &fakeClock{t: now}
	store := memstore.New()
	store.SetClock(clock.Now)

	h := &harness{
		store:    store,
		resolver: preference.NewResolver(store, nil, "UTC", zap.NewNop()),
		clock:    clock,
		trigger:  &captureTrigger{},
		push:     channel.NewPushSender(pushTransport{}, zap.NewNop()),
		email:    newRecordingSender("test-email"),
		sms:      newRecordingSender("test-sms"),
	}

	router := channel.NewRouter(zap.NewNop()).
		Handle(db.ChannelPush, h.push).
		Handle(db.ChannelEmail, h.email).
		Handle(db.ChannelSMS, h.sms)

	h.p = New(Deps{
		Queue:       store,
		Inbox:       store,
		Templates:   store,
		Contacts:    store,
		Preferences: h.resolver,
		Router:      router,
		Trigger:     h.trigger,
	}, Config{}, zap.NewNop())
	h.p.now = clock.Now

	return h
}

func (h *harness) get(t *testing.T, id uuid.UUID) *db.QueuedNotification {
	t.Helper()
	n, err := h.store.GetQueued(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (h *harness) setContact(t *testing.T, userID uuid.UUID, email, phone, token string) {
	t.Helper()
	c := &db.UserContact{UserID: userID}
	if email != "" {
		c.Email = &email
	}
	if phone != "" {
		c.Phone = &phone
	}
	if token != "" {
		c.PushToken = &token
	}
	require.NoError(t, h.store.SaveContact(context.Background(), c))
}

func ptr[T any](v T) *T { return &v }

func TestEnqueue_QueuedAndTriggered(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	userID := uuid.New()

	res, err := h.p.Enqueue(ctx, Request{
		UserID:  userID,
		Channel: db.ChannelEmail,
		Title:   "Hello",
		Message: "World",
		Payload: json.RawMessage(`{"k":"v"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.Equal(t, noon, res.ProcessAfter)

	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusPending, n.Status)
	assert.Equal(t, DefaultPriority, n.Priority)
	assert.Equal(t, DefaultMaxAttempts, n.MaxAttempts)
	assert.Equal(t, 0, n.Attempts)
	assert.JSONEq(t, `{"k":"v"}`, string(n.Payload))
	assert.Equal(t, []uuid.UUID{res.ID}, h.trigger.submitted())
}

func TestEnqueue_BlockedChannelCreatesNoRecord(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	// sms is off by default
	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelSMS, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	assert.Equal(t, uuid.Nil, res.ID)

	due, err := h.store.ListDue(ctx, noon.Add(24*time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.Empty(t, h.trigger.submitted())
}

func TestEnqueue_BlockedCategory(t *testing.T) {
	h := newHarness(t, noon)

	res, err := h.p.Enqueue(context.Background(), Request{
		UserID:   uuid.New(),
		Channel:  db.ChannelPush,
		Category: db.CategoryPromotional,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
}

func TestEnqueue_QuietHoursDefersToNextEnd(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before midnight defers to tomorrow",
			now:  time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "after midnight defers to today",
			now:  time.Date(2026, 3, 10, 3, 15, 0, 0, time.UTC),
			want: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.now)

			res, err := h.p.Enqueue(context.Background(), Request{UserID: uuid.New(), Channel: db.ChannelPush, Title: "t"})
			require.NoError(t, err)
			assert.Equal(t, OutcomeDeferred, res.Outcome)
			assert.True(t, res.ProcessAfter.Equal(tt.want), "process_after %s, want %s", res.ProcessAfter, tt.want)
			assert.Empty(t, h.trigger.submitted())

			n := h.get(t, res.ID)
			assert.True(t, n.ProcessAfter.Equal(tt.want))
			assert.False(t, n.ProcessAfter.Before(n.CreatedAt))
		})
	}
}

func TestEnqueue_EndMinuteOfQuietHoursIsQueued(t *testing.T) {
	// 08:00:30 is inside the inclusive 08:00 end minute, but the window has
	// already ended, so the record goes straight to the trigger.
	h := newHarness(t, time.Date(2026, 3, 10, 8, 0, 30, 0, time.UTC))
	now := h.clock.Now()

	res, err := h.p.Enqueue(context.Background(), Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.True(t, res.ProcessAfter.Equal(now))
	assert.Equal(t, []uuid.UUID{res.ID}, h.trigger.submitted())
}

func TestEnqueue_QuietHoursInUserTimezone(t *testing.T) {
	// 12:00 UTC is 21:00 in Tokyo; the user's 20:00-23:00 window applies.
	h := newHarness(t, noon)
	ctx := context.Background()
	userID := uuid.New()

	_, err := h.resolver.Update(ctx, userID, preference.Patch{
		QuietHoursStart: ptr("20:00"),
		QuietHoursEnd:   ptr("23:00"),
		Timezone:        ptr("Asia/Tokyo"),
	})
	require.NoError(t, err)

	res, err := h.p.Enqueue(ctx, Request{UserID: userID, Channel: db.ChannelEmail})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.True(t, res.ProcessAfter.Equal(noon.Add(2*time.Hour)), "got %s", res.ProcessAfter)
}

func TestEnqueue_InAppIgnoresQuietHours(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))

	res, err := h.p.Enqueue(context.Background(), Request{UserID: uuid.New(), Channel: db.ChannelInApp, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.Equal(t, db.InAppInfo, h.get(t, res.ID).InAppType)
}

func TestEnqueue_ExplicitSchedule(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := h.clock.Now()

	future := now.Add(2 * time.Hour)
	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelPush, ScheduledAt: &future})
	require.NoError(t, err)
	assert.Equal(t, OutcomeScheduled, res.Outcome)
	assert.True(t, res.ProcessAfter.Equal(future))

	// an explicit schedule bypasses quiet hours and a past one is clamped to now
	past := now.Add(-time.Hour)
	res, err = h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelPush, ScheduledAt: &past})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.True(t, res.ProcessAfter.Equal(now))

	assert.Len(t, h.trigger.submitted(), 1)
}

func TestEnqueue_Validation(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	bad := []Request{
		{Channel: db.ChannelPush},
		{UserID: uuid.New(), Channel: "fax"},
		{UserID: uuid.New(), Channel: db.ChannelInApp, InAppType: "shout"},
		{UserID: uuid.New(), Channel: db.ChannelPush, Category: "gossip"},
		{UserID: uuid.New(), Channel: db.ChannelPush, Payload: json.RawMessage(`{broken`)},
		{UserID: uuid.New(), Channel: db.ChannelPush, MaxAttempts: -1},
		{UserID: uuid.New(), Channel: db.ChannelSMS, HTMLMessage: "<p>x</p>"},
	}
	for _, req := range bad {
		_, err := h.p.Enqueue(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "request %+v", req)
	}
}

func TestEnqueue_ZeroDefaultPriorityIsKept(t *testing.T) {
	h := newHarness(t, noon)
	h.p.config.DefaultPriority = ptr(0)

	res, err := h.p.Enqueue(context.Background(), Request{UserID: uuid.New(), Channel: db.ChannelInApp, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 0, h.get(t, res.ID).Priority)
}

func TestNew_NegativeDefaultPriorityFallsBack(t *testing.T) {
	p := New(Deps{}, Config{DefaultPriority: ptr(-1)}, zap.NewNop())
	assert.Equal(t, DefaultPriority, *p.config.DefaultPriority)
}

func TestEnqueue_OverridesPriorityAndAttempts(t *testing.T) {
	h := newHarness(t, noon)

	res, err := h.p.Enqueue(context.Background(), Request{
		UserID:      uuid.New(),
		Channel:     db.ChannelEmail,
		Priority:    ptr(1),
		MaxAttempts: 2,
		Category:    db.CategoryBooking,
		SourceType:  "booking",
		SourceID:    "bk-1",
	})
	require.NoError(t, err)

	n := h.get(t, res.ID)
	assert.Equal(t, 1, n.Priority)
	assert.Equal(t, 2, n.MaxAttempts)
	require.NotNil(t, n.Category)
	assert.Equal(t, db.CategoryBooking, *n.Category)
	require.NotNil(t, n.SourceID)
	assert.Equal(t, "bk-1", *n.SourceID)
}

func TestDispatch_SendsUsingContactAddress(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	userID := uuid.New()
	h.setContact(t, userID, "guest@example.com", "", "")

	res, err := h.p.Enqueue(ctx, Request{UserID: userID, Channel: db.ChannelEmail, Title: "Hi"})
	require.NoError(t, err)

	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.True(t, n.SentAt.Equal(h.clock.Now()))
	require.NotNil(t, n.ProviderName)
	assert.Equal(t, "test-email", *n.ProviderName)
	assert.Equal(t, "msg-"+res.ID.String(), *n.ProviderMessageID)
	assert.Equal(t, []string{"guest@example.com"}, h.email.addresses)
}

func TestDispatch_EmailCarriesHTMLAndText(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	res, err := h.p.Enqueue(ctx, Request{
		UserID:      uuid.New(),
		Channel:     db.ChannelEmail,
		Address:     ptr("guest@example.com"),
		Title:       "Receipt",
		Message:     "Total: 3 < 5",
		HTMLMessage: "<p>Total: 3 &lt; 5</p>",
	})
	require.NoError(t, err)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	h.email.mu.Lock()
	defer h.email.mu.Unlock()
	assert.Equal(t, "Total: 3 < 5", h.email.last.Body)
	assert.Equal(t, "<p>Total: 3 &lt; 5</p>", h.email.last.HTML)
}

func TestDispatch_AddressOverrideWins(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	userID := uuid.New()
	h.setContact(t, userID, "", "", "stored-token")

	res, err := h.p.Enqueue(ctx, Request{UserID: userID, Channel: db.ChannelPush, Address: ptr("override-token")})
	require.NoError(t, err)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusSent, n.Status)
	assert.Equal(t, "push-override-token", *n.ProviderMessageID)
}

func TestDispatch_InAppCreatesFeedEntry(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	userID := uuid.New()

	res, err := h.p.Enqueue(ctx, Request{
		UserID:    userID,
		Channel:   db.ChannelInApp,
		Title:     "Welcome",
		Message:   "Thanks for joining",
		InAppType: db.InAppSuccess,
		Payload:   json.RawMessage(`{"screen":"home"}`),
	})
	require.NoError(t, err)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusSent, n.Status)
	assert.Equal(t, InAppProvider, *n.ProviderName)

	feed, err := h.store.ListInApp(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Welcome", feed[0].Title)
	assert.Equal(t, db.InAppSuccess, feed[0].Type)
	assert.False(t, feed[0].Read)
	assert.Equal(t, feed[0].ID.String(), *n.ProviderMessageID)
}

func TestDispatch_NoOpWhenNotDueOrNotPending(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	future := noon.Add(time.Hour)
	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c"), ScheduledAt: &future})
	require.NoError(t, err)

	require.NoError(t, h.p.Dispatch(ctx, res.ID))
	assert.Equal(t, db.StatusPending, h.get(t, res.ID).Status)
	assert.Equal(t, 0, h.email.count(res.ID))

	h.clock.Advance(time.Hour)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))
	require.NoError(t, h.p.Dispatch(ctx, res.ID))
	assert.Equal(t, 1, h.email.count(res.ID))

	// unknown ids are ignored
	require.NoError(t, h.p.Dispatch(ctx, uuid.New()))
}

func TestDispatch_MissingTokenBackoffUntilFailed(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelPush, Title: "t", Message: "m"})
	require.NoError(t, err)

	for i, delay := range []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute} {
		require.NoError(t, h.p.Dispatch(ctx, res.ID))

		n := h.get(t, res.ID)
		assert.Equal(t, db.StatusPending, n.Status, "after attempt %d", i+1)
		assert.Equal(t, i+1, n.Attempts)
		assert.True(t, n.ProcessAfter.Equal(h.clock.Now().Add(delay)), "attempt %d: process_after %s", i+1, n.ProcessAfter)
		require.NotNil(t, n.LastError)
		assert.Contains(t, *n.LastError, channel.ErrMissingAddress.Error())

		h.clock.Advance(delay)
	}

	require.NoError(t, h.p.Dispatch(ctx, res.ID))
	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusFailed, n.Status)
	assert.Equal(t, n.MaxAttempts, n.Attempts)
	require.NotNil(t, n.FailedAt)
	assert.True(t, n.FailedAt.Equal(h.clock.Now()))

	// failed is terminal
	h.clock.Advance(time.Hour)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))
	assert.Equal(t, db.StatusFailed, h.get(t, res.ID).Status)
}

func TestBackoffSchedule(t *testing.T) {
	p := New(Deps{}, Config{}, zap.NewNop())

	want := []time.Duration{1, 5, 15, 30, 30, 30}
	for i, minutes := range want {
		assert.Equal(t, minutes*time.Minute, p.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestDispatch_LongRetryBudgetRepeatsLastDelay(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	h.email.err = errors.New("smtp down")

	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c"), MaxAttempts: 6})
	require.NoError(t, err)

	var delays []time.Duration
	for {
		require.NoError(t, h.p.Dispatch(ctx, res.ID))
		n := h.get(t, res.ID)
		if n.Status != db.StatusPending {
			assert.Equal(t, db.StatusFailed, n.Status)
			assert.Equal(t, 6, n.Attempts)
			assert.Contains(t, *n.LastError, "smtp down")
			break
		}
		d := n.ProcessAfter.Sub(h.clock.Now())
		delays = append(delays, d)
		h.clock.Advance(d)
	}

	assert.Equal(t, []time.Duration{
		time.Minute, 5 * time.Minute, 15 * time.Minute, 30 * time.Minute, 30 * time.Minute,
	}, delays)
}

func TestDispatch_PanicBecomesFailure(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()
	h.email.panicWith = "boom"

	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	n := h.get(t, res.ID)
	assert.Equal(t, db.StatusPending, n.Status)
	assert.Equal(t, 1, n.Attempts)
	assert.Contains(t, *n.LastError, "boom")
}

func TestDispatch_SettlesAfterCallerCancels(t *testing.T) {
	h := newHarness(t, noon)
	h.email.err = context.Canceled

	res, err := h.p.Enqueue(context.Background(), Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.p.Dispatch(ctx, res.ID))

	assert.NotEqual(t, db.StatusProcessing, h.get(t, res.ID).Status)
}

func TestDrainQueue_OrderAndBatch(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	var ids []uuid.UUID
	for _, prio := range []int{9, 1, 5} {
		res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c"), Priority: ptr(prio)})
		require.NoError(t, err)
		ids = append(ids, res.ID)
		h.clock.Advance(time.Second)
	}

	examined, err := h.p.DrainQueue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, examined)

	assert.Equal(t, db.StatusSent, h.get(t, ids[1]).Status)
	assert.Equal(t, db.StatusSent, h.get(t, ids[2]).Status)
	assert.Equal(t, db.StatusPending, h.get(t, ids[0]).Status)

	examined, err = h.p.DrainQueue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, examined)
}

func TestDrainQueue_SkipsFutureRecords(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)

	examined, err := h.p.DrainQueue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, examined)

	h.clock.Advance(9 * time.Hour)
	examined, err = h.p.DrainQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, examined)
}

func TestDrainQueue_ConcurrentDrainsNeverDoubleSend(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	const total = 60
	ids := make([]uuid.UUID, 0, total)
	for i := 0; i < total; i++ {
		res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.p.DrainQueue(ctx, total)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, h.email.count(id), "notification %s", id)
		assert.Equal(t, db.StatusSent, h.get(t, id).Status)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, noon)
	ctx := context.Background()

	res, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)
	require.NoError(t, h.p.Cancel(ctx, res.ID))

	_, err = h.p.Get(ctx, res.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	sent, err := h.p.Enqueue(ctx, Request{UserID: uuid.New(), Channel: db.ChannelEmail, Address: ptr("a@b.c")})
	require.NoError(t, err)
	require.NoError(t, h.p.Dispatch(ctx, sent.ID))
	assert.ErrorIs(t, h.p.Cancel(ctx, sent.ID), db.ErrNotFound)
}
