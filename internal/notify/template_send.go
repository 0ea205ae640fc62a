package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/template"
)

// SourceTemplate is the provenance recorded for template sends.
const SourceTemplate = "template"

// ChannelResult is the enqueue result for one template channel.
type ChannelResult struct {
	Channel string
	Result  EnqueueResult
	Err     error
}

// SendFromTemplate renders the template for each of its channels and
// enqueues every rendering independently and in parallel. A missing or
// disabled template is a logged no-op. Per-channel failures are joined into
// the returned error and do not stop the other channels.
func (p *Processor) SendFromTemplate(ctx context.Context, key string, userID uuid.UUID, vars map[string]any) ([]ChannelResult, error) {
	ctx, span := tracer.Start(ctx, "notify.SendFromTemplate", trace.WithAttributes(
		attribute.String("template", key),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	tpl, err := p.templates.GetTemplateByKey(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Warn("template not found, nothing sent", zap.String("template", key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", key, err)
	}
	if !tpl.Enabled {
		p.logger.Info("template disabled, nothing sent", zap.String("template", key))
		return nil, nil
	}

	if vars == nil {
		vars = map[string]any{}
	}
	payload, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("%w: variables are not JSON encodable: %v", ErrInvalidRequest, err)
	}

	var category string
	if tpl.Category != nil {
		category = *tpl.Category
	}
	priority := tpl.Priority

	results := make([]ChannelResult, len(tpl.Channels))
	errs := make([]error, len(tpl.Channels))

	var wg sync.WaitGroup
	for i, ch := range tpl.Channels {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r := template.Render(tpl, ch, vars)
			res, err := p.Enqueue(ctx, Request{
				UserID:      userID,
				Channel:     ch,
				Title:       r.Title,
				Message:     r.Body,
				HTMLMessage: r.HTML,
				Priority:    &priority,
				Payload:     payload,
				Category:    category,
				InAppType:   tpl.InAppType,
				SourceType:  SourceTemplate,
				SourceID:    key,
			})
			results[i] = ChannelResult{Channel: ch, Result: res, Err: err}
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", ch, err)
			}
		}()
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
