package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/providers/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	mu      sync.Mutex
	sent    []telegram.Message
	block   chan struct{}
	err     error
	started chan struct{}
}

func (p *recordingProvider) SendMessage(ctx context.Context, msg telegram.Message) error {
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return p.err
}

func (p *recordingProvider) Sent() []telegram.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]telegram.Message(nil), p.sent...)
}

var testNow = time.Date(2026, 3, 1, 3, 4, 5, 0, time.UTC)

func newDispatcher(provider telegram.Provider, queueSize int) *Dispatcher {
	return New(Params{
		Config: config.Config{
			PublicURL: "https://store.example.com",
			Telegram:  config.TelegramConfig{OwnerID: "1001", QueueSize: queueSize, Timeout: time.Second},
		},
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(testNow),
		Provider: provider,
	})
}

func sampleOrder() (orderdomain.Order, orderdomain.ProvisionedResource) {
	order := orderdomain.Order{ID: "ORDER_1", Contact: "a<b>@example.com", Tier: "2gb", Amount: 10000}
	resource := orderdomain.ProvisionedResource{
		ServerID:   99,
		ServerName: "A<b> 2GB Server #1",
		Limits:     orderdomain.ResourceLimits{MemoryMB: 2048, DiskMB: 2048, CPUPercent: 60},
	}
	return order, resource
}

func TestPanelCreatedMessage(t *testing.T) {
	order, resource := sampleOrder()
	msg := PanelCreatedMessage(order, resource, "webhook", testNow)

	assert.Contains(t, msg, "<blockquote>✅ PANEL BARU DIBUAT VIA WEBHOOK</blockquote>")
	assert.Contains(t, msg, "<b>📅 Waktu:</b> 1/3/2026, 10.04.05")
	assert.Contains(t, msg, "a&lt;b&gt;@example.com")
	assert.Contains(t, msg, "<b>📦 Tipe Panel:</b> 2GB")
	assert.Contains(t, msg, "Rp 10.000")
	assert.Contains(t, msg, "<code>99</code>")
	assert.Contains(t, msg, "A&lt;b&gt; 2GB Server #1")
	assert.Contains(t, msg, "<b>💾 RAM:</b> 2048MB")
	assert.Contains(t, msg, "<b>⚡ CPU:</b> 60%")
	assert.NotContains(t, msg, "<b>@")

	apiMsg := PanelCreatedMessage(order, orderdomain.ProvisionedResource{}, "api", testNow)
	assert.Contains(t, apiMsg, "<blockquote>✅ PANEL BARU DIBUAT</blockquote>")
	assert.Contains(t, apiMsg, "<b>💿 Disk:</b> Unlimited")
}

func TestFormatRupiah(t *testing.T) {
	cases := map[int64]string{0: "0", 500: "500", 1000: "1.000", 1234567: "1.234.567", -2500: "-2.500"}
	for in, want := range cases {
		assert.Equal(t, want, formatRupiah(in), "amount %d", in)
	}
}

func TestDispatcherDeliversAndDrainsOnStop(t *testing.T) {
	provider := &recordingProvider{}
	d := newDispatcher(provider, 8)
	d.Start()

	order, resource := sampleOrder()
	d.PanelCreated(context.Background(), order, resource, "api")
	d.PanelCreated(context.Background(), order, resource, "webhook")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	sent := provider.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "1001", sent[0].ChatID)
	assert.Equal(t, buyButtonText, sent[0].ButtonText)
	assert.Equal(t, "https://store.example.com", sent[0].ButtonURL)

	assert.False(t, d.Enqueue(context.Background(), telegram.Message{Text: "late"}))
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	provider := &recordingProvider{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := newDispatcher(provider, 1)
	d.Start()

	require.True(t, d.Enqueue(context.Background(), telegram.Message{Text: "first"}))
	<-provider.started
	require.True(t, d.Enqueue(context.Background(), telegram.Message{Text: "second"}))
	assert.False(t, d.Enqueue(context.Background(), telegram.Message{Text: "third"}))

	close(provider.block)
	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, provider.Sent(), 2)
}

func TestDispatcherSurvivesSendFailure(t *testing.T) {
	provider := &recordingProvider{err: errors.New("chat not found")}
	d := newDispatcher(provider, 4)
	d.Start()

	assert.True(t, d.Enqueue(context.Background(), telegram.Message{Text: "one"}))
	assert.True(t, d.Enqueue(context.Background(), telegram.Message{Text: "two"}))
	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, provider.Sent(), 2)
}
