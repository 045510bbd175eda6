package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/pkg/metrics"
	"koinonia.app/notifier/internal/pkg/worker"
	"koinonia.app/notifier/internal/push"
	"koinonia.app/notifier/internal/store"
)

// Skip reasons reported in metrics.
const (
	skipPreference = "preference"
	skipNoTokens   = "no_tokens"
	skipTokenLoad  = "token_load_failed"
	skipCancelled  = "cancelled"
)

// EngineConfig tunes one Engine.
type EngineConfig struct {
	// Concurrency caps recipients in flight within one Deliver call.
	Concurrency int
	// MaxRetries bounds retries of transient send errors. Zero disables retry.
	MaxRetries   int
	RetryBackoff time.Duration
	// SendTimeout bounds a single provider call. Zero means no bound.
	SendTimeout time.Duration
}

// DeliveryReport summarizes one Deliver call.
type DeliveryReport struct {
	Recipients     int
	Skipped        int
	Sent           int
	Failed         int
	TokensPruned   int
	RecordsWritten int
}

func (r *DeliveryReport) add(o recipientOutcome) {
	if o.skipped != "" {
		r.Skipped++
	}
	r.Sent += o.sent
	r.Failed += o.failed
	r.TokensPruned += o.pruned
	if o.recordWritten {
		r.RecordsWritten++
	}
}

type recipientOutcome struct {
	skipped       string
	sent          int
	failed        int
	pruned        int
	recordWritten bool
}

// Engine delivers a NotificationEvent to a recipient set.
type Engine struct {
	tokens  store.TokenStore
	records store.NotificationStore
	prefs   *PreferenceFilter
	sender  push.Sender
	pool    *worker.Pool
	metrics *metrics.DeliveryMetrics
	cfg     EngineConfig
}

// NewEngine creates a delivery engine. pool may be nil, in which case
// recipients are processed one after another on the caller's goroutine.
func NewEngine(
	tokens store.TokenStore,
	records store.NotificationStore,
	prefs *PreferenceFilter,
	sender push.Sender,
	pool *worker.Pool,
	m *metrics.DeliveryMetrics,
	cfg EngineConfig,
) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Engine{
		tokens:  tokens,
		records: records,
		prefs:   prefs,
		sender:  sender,
		pool:    pool,
		metrics: m,
		cfg:     cfg,
	}
}

// Deliver sends event to every recipient and returns the aggregated outcome.
// Recipients are independent: a failure for one never stops the others.
// Duplicate ids are collapsed so each recipient gets at most one record.
func (e *Engine) Deliver(ctx context.Context, event domain.NotificationEvent, recipients []string) DeliveryReport {
	start := time.Now()
	recipients = exclude(recipients, "")
	category := string(event.Category)

	report := DeliveryReport{Recipients: len(recipients)}
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, recipientID := range recipients {
		wg.Add(1)
		task := func(ctx context.Context) {
			defer wg.Done()
			outcome := e.deliverBounded(ctx, sem, event, recipientID)
			mu.Lock()
			report.add(outcome)
			mu.Unlock()
		}

		if e.pool == nil {
			task(ctx)
			continue
		}
		if err := e.pool.Submit(ctx, task); err != nil {
			logger.Warn("Delivery pool rejected recipient, running inline",
				zap.String("event_category", category),
				zap.String("recipient", recipientID),
				zap.Error(err),
			)
			task(ctx)
		}
	}
	wg.Wait()

	e.metrics.ObserveDuration(category, time.Since(start))
	logger.Info("Notification delivered",
		zap.String("event_category", category),
		zap.String("group_id", event.GroupID),
		zap.String("sender_id", event.SenderID),
		zap.Int("recipients", report.Recipients),
		zap.Int("skipped", report.Skipped),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("tokens_pruned", report.TokensPruned),
		zap.Int("records_written", report.RecordsWritten),
		zap.Duration("duration", time.Since(start)),
	)
	return report
}

func (e *Engine) deliverBounded(ctx context.Context, sem *semaphore.Weighted, event domain.NotificationEvent, recipientID string) recipientOutcome {
	if ctx.Err() != nil {
		e.metrics.IncSkipped(string(event.Category), skipCancelled)
		return recipientOutcome{skipped: skipCancelled}
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		e.metrics.IncSkipped(string(event.Category), skipCancelled)
		return recipientOutcome{skipped: skipCancelled}
	}
	defer sem.Release(1)

	return e.deliverTo(ctx, event, recipientID)
}

// deliverTo handles one recipient. Tokens are walked in stored order and the
// record flag is settled before the next token is tried.
func (e *Engine) deliverTo(ctx context.Context, event domain.NotificationEvent, recipientID string) recipientOutcome {
	category := string(event.Category)
	log := logger.With(
		zap.String("event_category", category),
		zap.String("recipient", recipientID),
		zap.String("group_id", event.GroupID),
	)

	if !e.prefs.ShouldNotify(ctx, recipientID, event.GroupID, event.Category) {
		e.metrics.IncSkipped(category, skipPreference)
		return recipientOutcome{skipped: skipPreference}
	}

	tokens, err := e.tokens.GetTokens(ctx, recipientID)
	if err != nil {
		log.Warn("Failed to load device tokens", zap.Error(err))
		e.metrics.IncSkipped(category, skipTokenLoad)
		return recipientOutcome{skipped: skipTokenLoad}
	}
	if len(tokens) == 0 {
		e.metrics.IncSkipped(category, skipNoTokens)
		return recipientOutcome{skipped: skipNoTokens}
	}

	var outcome recipientOutcome
	// The id is fixed per recipient so a retried write lands on the same document.
	recordID := uuid.NewString()
	data := event.PushData()

	for _, token := range tokens {
		err := e.send(ctx, push.Message{
			Token: token,
			Title: event.Title,
			Body:  event.Body,
			Data:  data,
		})
		if err == nil {
			outcome.sent++
			e.metrics.IncSent(category)
			if outcome.recordWritten || event.SkipRecord {
				continue
			}
			if err := e.records.CreateNotification(ctx, recipientID, domain.NewRecord(recordID, event)); err != nil {
				log.Error("Failed to save notification record",
					zap.String("record_id", recordID),
					zap.Error(err),
				)
				continue
			}
			outcome.recordWritten = true
			e.metrics.IncRecord(category)
			log.Debug("Notification sent and saved", zap.String("record_id", recordID))
			continue
		}

		outcome.failed++
		class := push.Classify(err)
		e.metrics.IncFailed(category, string(class))
		log.Warn("Notification failed to send",
			zap.String("token", push.Redact(token)),
			zap.String("error_code", push.Code(err)),
			zap.Error(err),
		)
		if class != push.ClassInvalidToken {
			continue
		}
		if err := e.tokens.DeleteToken(ctx, recipientID, token); err != nil {
			log.Error("Failed to delete invalid token",
				zap.String("token", push.Redact(token)),
				zap.Error(err),
			)
			continue
		}
		outcome.pruned++
		e.metrics.IncPruned()
		log.Info("Invalid token removed", zap.String("token", push.Redact(token)))
	}
	return outcome
}

// send calls the provider, retrying transient failures with exponential
// backoff up to MaxRetries times.
func (e *Engine) send(ctx context.Context, msg push.Message) error {
	backoff := e.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := e.sendOnce(ctx, msg)
		if err == nil || attempt >= e.cfg.MaxRetries || push.Classify(err) != push.ClassTransient {
			return err
		}
		logger.Debug("Retrying transient send error",
			zap.String("token", push.Redact(msg.Token)),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (e *Engine) sendOnce(ctx context.Context, msg push.Message) error {
	if e.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SendTimeout)
		defer cancel()
	}
	_, err := e.sender.Send(ctx, msg)
	return err
}
