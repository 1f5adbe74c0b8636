package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	obslogger "github.com/novabot503/novacat/internal/observability/logger"
	"github.com/novabot503/novacat/internal/observability/metrics"
	"github.com/novabot503/novacat/internal/observability/tracing"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/providers/telegram"
	"github.com/novabot503/novacat/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 10 * time.Second
	buyButtonText      = "🛒 Beli Panel"
)

var ErrDispatcherStopped = errors.New("notification_dispatcher_stopped")

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Provider telegram.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type job struct {
	ctx context.Context
	msg telegram.Message
}

// Dispatcher delivers operator notifications from a bounded queue on a single
// worker so request handlers never wait on the chat API.
type Dispatcher struct {
	log      *zap.Logger
	clock    clock.Clock
	provider telegram.Provider
	metrics  *metrics.Metrics
	chatID   string
	storeURL string
	timeout  time.Duration

	mu     sync.RWMutex
	queue  chan job
	closed bool
	done   chan struct{}
	start  sync.Once
}

func New(p Params) *Dispatcher {
	size := p.Config.Telegram.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := p.Config.Telegram.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		log:      p.Log.Named("notification"),
		clock:    p.Clock,
		provider: p.Provider,
		metrics:  p.Metrics,
		chatID:   p.Config.Telegram.OwnerID,
		storeURL: p.Config.PublicURL,
		timeout:  timeout,
		queue:    make(chan job, size),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		go d.run()
	})
}

// Stop refuses new messages and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue queues msg without blocking. It returns false when the queue is
// full or the dispatcher has stopped.
func (d *Dispatcher) Enqueue(ctx context.Context, msg telegram.Message) bool {
	if msg.ChatID == "" {
		msg.ChatID = d.chatID
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped", zap.Error(ErrDispatcherStopped))
		d.metrics.RecordNotification(ctx, "dropped")
		return false
	}
	select {
	case d.queue <- job{ctx: correlation.Detach(ctx), msg: msg}:
		return true
	default:
		obslogger.WithContext(ctx, d.log).Warn("notification queue full, message dropped", zap.Int("capacity", cap(d.queue)))
		d.metrics.RecordNotification(ctx, "dropped")
		return false
	}
}

// PanelCreated implements orderdomain.Notifier.
func (d *Dispatcher) PanelCreated(ctx context.Context, order orderdomain.Order, resource orderdomain.ProvisionedResource, source string) {
	d.Enqueue(ctx, telegram.Message{
		ChatID:     d.chatID,
		Text:       PanelCreatedMessage(order, resource, source, d.clock.Now()),
		ButtonText: buyButtonText,
		ButtonURL:  d.storeURL,
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		d.send(j)
	}
}

func (d *Dispatcher) send(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	ctx, span := otel.Tracer("novacat/notification").Start(ctx, "notification.send")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("provider", "telegram"))...)

	log := obslogger.WithContext(ctx, d.log)
	if err := d.provider.SendMessage(ctx, j.msg); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "send failed")
		log.Warn("notification send failed", zap.Error(err))
		d.metrics.RecordNotification(ctx, "failed")
		return
	}
	log.Debug("notification sent")
	d.metrics.RecordNotification(ctx, "sent")
}
