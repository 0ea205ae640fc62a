// Package notify is the notification processor: it filters requests through
// user preferences and quiet hours, persists them to the queue, dispatches
// due records to channel senders or the in-app feed, and retries failures
// with backoff until the attempt budget runs out.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/courier/internal/channel"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/preference"
)

var tracer = otel.Tracer("github.com/lalithlochan/courier/internal/notify")

// ErrInvalidRequest marks caller errors such as an unknown channel.
var ErrInvalidRequest = errors.New("invalid notification request")

// QueueStore persists queue records. ClaimQueued must be an atomic
// compare-and-set on (status = pending, attempts).
type QueueStore interface {
	CreateQueued(ctx context.Context, n *db.QueuedNotification) error
	GetQueued(ctx context.Context, id uuid.UUID) (*db.QueuedNotification, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*db.QueuedNotification, error)
	ClaimQueued(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, sentAt time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastError string, processAfter time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, failedAt time.Time) error
	CancelQueued(ctx context.Context, id uuid.UUID) error
}

// TemplateStore looks up templates by key.
type TemplateStore interface {
	GetTemplateByKey(ctx context.Context, key string) (*db.NotificationTemplate, error)
}

// ContactStore supplies addresses for records queued without one.
type ContactStore interface {
	GetContact(ctx context.Context, userID uuid.UUID) (*db.UserContact, error)
}

// Preferences resolves a user's delivery preferences, creating defaults on
// first access.
type Preferences interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error)
}

// Dispatcher delivers content on a channel. *channel.Router implements it.
type Dispatcher interface {
	Send(ctx context.Context, ch, address string, content channel.Content) (channel.Result, error)
}

// Trigger accepts ids for immediate dispatch. Submit must not block; a
// dropped id is picked up by the next drain.
type Trigger interface {
	Submit(id uuid.UUID) bool
}

// Deps are the collaborators a Processor needs. Contacts and Trigger may be nil.
type Deps struct {
	Queue       QueueStore
	Inbox       InboxStore
	Templates   TemplateStore
	Contacts    ContactStore
	Preferences Preferences
	Router      Dispatcher
	Trigger     Trigger
}

// Config tunes the processor. Zero fields take their defaults, except
// DefaultPriority where 0 is the most urgent level and nil means unset.
type Config struct {
	MaxAttempts      int
	DefaultPriority  *int
	DrainBatchSize   int
	DrainConcurrency int
	Backoff          []time.Duration
}

const (
	DefaultMaxAttempts      = 4
	DefaultPriority         = 5
	DefaultDrainBatchSize   = 50
	DefaultDrainConcurrency = 10
)

// DefaultBackoff is the retry schedule; attempts past its end reuse the last value.
var DefaultBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// Processor runs the notification lifecycle.
type Processor struct {
	queue     QueueStore
	inbox     InboxStore
	templates TemplateStore
	contacts  ContactStore
	prefs     Preferences
	router    Dispatcher
	trigger   Trigger
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a processor.
func New(deps Deps, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DefaultPriority == nil || *cfg.DefaultPriority < 0 {
		prio := DefaultPriority
		cfg.DefaultPriority = &prio
	}
	if cfg.DrainBatchSize <= 0 {
		cfg.DrainBatchSize = DefaultDrainBatchSize
	}
	if cfg.DrainConcurrency <= 0 {
		cfg.DrainConcurrency = DefaultDrainConcurrency
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = DefaultBackoff
	}

	return &Processor{
		queue:     deps.Queue,
		inbox:     deps.Inbox,
		templates: deps.Templates,
		contacts:  deps.Contacts,
		prefs:     deps.Preferences,
		router:    deps.Router,
		trigger:   deps.Trigger,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetTrigger installs the immediate-dispatch trigger. The trigger usually
// calls back into Dispatch, so it is wired after construction.
func (p *Processor) SetTrigger(t Trigger) {
	p.trigger = t
}

// Outcome describes what Enqueue did with a request.
type Outcome string

const (
	// OutcomeQueued means the record is due now and was handed to the trigger.
	OutcomeQueued Outcome = "queued"
	// OutcomeScheduled means the caller asked for a future time.
	OutcomeScheduled Outcome = "scheduled"
	// OutcomeDeferred means quiet hours pushed the record to their end.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeBlocked means preferences rejected the request; nothing was stored.
	OutcomeBlocked Outcome = "blocked"
)

// Request is one notification to enqueue.
type Request struct {
	UserID      uuid.UUID       `json:"user_id"`
	Channel     string          `json:"channel"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	HTMLMessage string          `json:"html_message,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	Address     *string         `json:"address,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	Category    string          `json:"category,omitempty"`
	InAppType   string          `json:"in_app_type,omitempty"`
	SourceType  string          `json:"source_type,omitempty"`
	SourceID    string          `json:"source_id,omitempty"`
}

func (r *Request) validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if !db.ValidChannel(r.Channel) {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, r.Channel)
	}
	if r.HTMLMessage != "" && r.Channel != db.ChannelEmail {
		return fmt.Errorf("%w: html_message is only valid for email", ErrInvalidRequest)
	}
	if r.InAppType != "" && !db.ValidInAppType(r.InAppType) {
		return fmt.Errorf("%w: unknown in_app_type %q", ErrInvalidRequest, r.InAppType)
	}
	switch r.Category {
	case "", db.CategoryBooking, db.CategoryPayment, db.CategorySystem, db.CategoryPromotional:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, r.Category)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidRequest)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrInvalidRequest)
	}
	return nil
}

// EnqueueResult reports the stored record, if any. ID is uuid.Nil when blocked.
type EnqueueResult struct {
	ID           uuid.UUID
	Outcome      Outcome
	ProcessAfter time.Time
}

// Enqueue applies preferences and quiet hours, then stores the request as a
// pending record. Blocked and deferred requests are outcomes, not errors;
// only invalid input and datastore faults fail.
func (p *Processor) Enqueue(ctx context.Context, req Request) (EnqueueResult, error) {
	ctx, span := tracer.Start(ctx, "notify.Enqueue", trace.WithAttributes(
		attribute.String("channel", req.Channel),
		attribute.String("user_id", req.UserID.String()),
	))
	defer span.End()

	if err := req.validate(); err != nil {
		return EnqueueResult{}, err
	}

	prefs, err := p.prefs.Resolve(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve preferences")
		return EnqueueResult{}, fmt.Errorf("resolve preferences: %w", err)
	}

	if !prefs.ChannelEnabled(req.Channel) || !prefs.CategoryEnabled(req.Category) {
		p.logger.Info("notification blocked by user preferences",
			zap.String("user_id", req.UserID.String()),
			zap.String("channel", req.Channel),
			zap.String("category", req.Category),
		)
		metrics.RecordEnqueue(req.Channel, string(OutcomeBlocked))
		span.SetAttributes(attribute.String("outcome", string(OutcomeBlocked)))
		return EnqueueResult{Outcome: OutcomeBlocked}, nil
	}

	now := p.now()
	processAfter := now
	outcome := OutcomeQueued

	switch {
	case req.ScheduledAt != nil:
		if req.ScheduledAt.After(now) {
			processAfter = *req.ScheduledAt
			outcome = OutcomeScheduled
		}
	case req.Channel != db.ChannelInApp:
		// Inside the end minute the window is already over.
		if quiet := preference.QuietHoursOf(prefs); quiet.Contains(now) {
			if end := quiet.NextEnd(now); end.After(now) {
				processAfter = end
				outcome = OutcomeDeferred
			}
		}
	}

	n := p.newRecord(req, now, processAfter)
	if err := p.queue.CreateQueued(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist notification")
		return EnqueueResult{}, fmt.Errorf("persist notification: %w", err)
	}

	metrics.RecordEnqueue(req.Channel, string(outcome))
	span.SetAttributes(
		attribute.String("notification_id", n.ID.String()),
		attribute.String("outcome", string(outcome)),
	)

	p.logger.Info("notification enqueued",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("channel", req.Channel),
		zap.String("outcome", string(outcome)),
		zap.Time("process_after", processAfter),
	)

	if outcome == OutcomeQueued && p.trigger != nil {
		if !p.trigger.Submit(n.ID) {
			p.logger.Debug("dispatch trigger full, leaving notification to the drain",
				zap.String("notification_id", n.ID.String()),
			)
		}
	}

	return EnqueueResult{ID: n.ID, Outcome: outcome, ProcessAfter: processAfter}, nil
}

func (p *Processor) newRecord(req Request, now, processAfter time.Time) *db.QueuedNotification {
	n := &db.QueuedNotification{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Channel:      req.Channel,
		Priority:     *p.config.DefaultPriority,
		Title:        req.Title,
		Message:      req.Message,
		Payload:      req.Payload,
		Address:      req.Address,
		Status:       db.StatusPending,
		MaxAttempts:  p.config.MaxAttempts,
		ProcessAfter: processAfter,
		CreatedAt:    now,
	}
	if req.Priority != nil {
		n.Priority = *req.Priority
	}
	if req.HTMLMessage != "" {
		n.HTMLMessage = &req.HTMLMessage
	}
	if req.MaxAttempts > 0 {
		n.MaxAttempts = req.MaxAttempts
	}
	if req.Category != "" {
		n.Category = &req.Category
	}
	if req.Channel == db.ChannelInApp {
		n.InAppType = req.InAppType
		if n.InAppType == "" {
			n.InAppType = db.InAppInfo
		}
	}
	if req.SourceType != "" {
		n.SourceType = &req.SourceType
	}
	if req.SourceID != "" {
		n.SourceID = &req.SourceID
	}
	return n
}

// Get returns a queue record in any status.
func (p *Processor) Get(ctx context.Context, id uuid.UUID) (*db.QueuedNotification, error) {
	return p.queue.GetQueued(ctx, id)
}

// Cancel removes a record that has not been picked up yet. Records in any
// other status report db.ErrNotFound.
func (p *Processor) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := p.queue.CancelQueued(ctx, id); err != nil {
		return err
	}
	p.logger.Info("notification cancelled", zap.String("notification_id", id.String()))
	return nil
}

// DrainQueue dispatches up to batchSize due records with bounded
// concurrency and returns how many it examined. A non-positive batchSize
// uses the configured default. Delivery failures are settled on the records
// and never returned.
func (p *Processor) DrainQueue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = p.config.DrainBatchSize
	}

	ctx, span := tracer.Start(ctx, "notify.DrainQueue", trace.WithAttributes(
		attribute.Int("batch_size", batchSize),
	))
	defer span.End()

	due, err := p.queue.ListDue(ctx, p.now(), batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list due notifications")
		return 0, fmt.Errorf("list due notifications: %w", err)
	}

	metrics.RecordDrainBatch(len(due))
	span.SetAttributes(attribute.Int("examined", len(due)))
	if len(due) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(p.config.DrainConcurrency)
	for _, n := range due {
		g.Go(func() error {
			if err := p.Dispatch(ctx, n.ID); err != nil {
				p.logger.Error("dispatch failed",
					zap.String("notification_id", n.ID.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("queue drained", zap.Int("examined", len(due)))
	return len(due), nil
}

// Dispatch delivers one record if it is still pending and due. Losing the
// claim to another dispatcher is a no-op. Delivery errors and panics become
// retry or failure transitions; only datastore faults are returned.
func (p *Processor) Dispatch(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "notify.Dispatch", trace.WithAttributes(
		attribute.String("notification_id", id.String()),
	))
	defer span.End()

	n, err := p.queue.GetQueued(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load notification %s: %w", id, err)
	}

	if n.Status != db.StatusPending || n.ProcessAfter.After(p.now()) {
		return nil
	}

	claimed, err := p.queue.ClaimQueued(ctx, id, n.Attempts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("claim notification %s: %w", id, err)
	}
	if !claimed {
		p.logger.Debug("notification claimed elsewhere", zap.String("notification_id", id.String()))
		return nil
	}

	span.SetAttributes(
		attribute.String("channel", n.Channel),
		attribute.Int("attempt", n.Attempts+1),
	)

	res, sendErr := p.deliver(ctx, n)
	if sendErr != nil {
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "delivery failed")
	}

	// The claim is settled even if the caller went away; a record left in
	// processing is never picked up again.
	return p.settle(context.WithoutCancel(ctx), n, res, sendErr)
}

func (p *Processor) deliver(ctx context.Context, n *db.QueuedNotification) (res channel.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("delivery panicked",
				zap.String("notification_id", n.ID.String()),
				zap.Any("panic", r),
			)
			res, err = channel.Result{}, fmt.Errorf("delivery panic: %v", r)
		}
	}()

	if n.Channel == db.ChannelInApp {
		return p.deliverInApp(ctx, n)
	}

	address, err := p.address(ctx, n)
	if err != nil {
		return channel.Result{}, err
	}

	return p.router.Send(ctx, n.Channel, address, channel.Content{
		NotificationID: n.ID.String(),
		Title:          n.Title,
		Body:           n.Message,
		HTML:           stringValue(n.HTMLMessage),
		Data:           n.Payload,
	})
}

// address prefers the record's override and falls back to the user's
// contact on file. An empty result is left for the sender to reject.
func (p *Processor) address(ctx context.Context, n *db.QueuedNotification) (string, error) {
	if n.Address != nil && *n.Address != "" {
		return *n.Address, nil
	}
	if p.contacts == nil {
		return "", nil
	}

	c, err := p.contacts.GetContact(ctx, n.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load contact: %w", err)
	}
	return c.AddressFor(n.Channel), nil
}

// InAppProvider is the provider name recorded for in-app deliveries.
const InAppProvider = "in_app"

func (p *Processor) deliverInApp(ctx context.Context, n *db.QueuedNotification) (channel.Result, error) {
	entry := &db.InAppNotification{
		ID:        uuid.New(),
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.InAppType,
		Payload:   n.Payload,
		CreatedAt: p.now(),
	}
	if entry.Type == "" {
		entry.Type = db.InAppInfo
	}

	if err := p.inbox.CreateInApp(ctx, entry); err != nil {
		return channel.Result{}, &channel.DeliveryError{Provider: InAppProvider, Err: err}
	}
	return channel.Result{ProviderName: InAppProvider, ProviderMessageID: entry.ID.String()}, nil
}

func (p *Processor) settle(ctx context.Context, n *db.QueuedNotification, res channel.Result, sendErr error) error {
	now := p.now()

	if sendErr == nil {
		if err := p.queue.MarkSent(ctx, n.ID, res.ProviderName, res.ProviderMessageID, now); err != nil {
			return fmt.Errorf("mark notification %s sent: %w", n.ID, err)
		}
		metrics.RecordDispatch(n.Channel, db.StatusSent)
		metrics.RecordDeliveryLatency(n.Channel, now.Sub(n.CreatedAt))
		p.logger.Info("notification sent",
			zap.String("notification_id", n.ID.String()),
			zap.String("channel", n.Channel),
			zap.String("provider", res.ProviderName),
			zap.String("provider_message_id", res.ProviderMessageID),
		)
		return nil
	}

	attempts := n.Attempts + 1
	maxAttempts := n.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.config.MaxAttempts
	}
	lastError := sendErr.Error()

	if attempts < maxAttempts {
		next := now.Add(p.Backoff(attempts))
		if err := p.queue.MarkRetry(ctx, n.ID, attempts, lastError, next); err != nil {
			return fmt.Errorf("schedule retry for notification %s: %w", n.ID, err)
		}
		metrics.RecordDispatch(n.Channel, db.StatusPending)
		p.logger.Warn("notification delivery failed, retry scheduled",
			zap.String("notification_id", n.ID.String()),
			zap.String("channel", n.Channel),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Time("process_after", next),
			zap.Error(sendErr),
		)
		return nil
	}

	if err := p.queue.MarkFailed(ctx, n.ID, attempts, lastError, now); err != nil {
		return fmt.Errorf("mark notification %s failed: %w", n.ID, err)
	}
	metrics.RecordDispatch(n.Channel, db.StatusFailed)
	p.logger.Error("notification failed permanently",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", n.Channel),
		zap.Int("attempts", attempts),
		zap.Error(sendErr),
	)
	return nil
}

// Backoff returns the delay before retrying after the given number of
// failed attempts.
func (p *Processor) Backoff(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.config.Backoff) {
		idx = len(p.config.Backoff) - 1
	}
	return p.config.Backoff[idx]
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
