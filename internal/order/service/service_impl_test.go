package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/novabot503/novacat/internal/catalog"
	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/observability/metrics"
	"github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/order/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePayment(ctx context.Context, orderID string, amount int64) (domain.Payment, error) {
	args := m.Called(ctx, orderID, amount)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func (m *mockGateway) QueryPaymentStatus(ctx context.Context, orderID string) (domain.Status, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(domain.Status), args.Error(1)
}

type fakeProvisioner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (p *fakeProvisioner) Provision(ctx context.Context, contact string, tier domain.Tier) (domain.ProvisionedResource, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return domain.ProvisionedResource{}, p.err
	}
	return domain.ProvisionedResource{
		Username:   strings.Split(contact, "@")[0],
		Email:      contact,
		Password:   "AbcdEfghIjkl",
		ServerID:   7,
		Identifier: "srv7",
		Tier:       tier.Code,
		Limits:     tier.Limits,
		PanelURL:   "https://panel.example.com/server/srv7",
	}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	sources []string
}

func (n *recordingNotifier) PanelCreated(_ context.Context, order domain.Order, resource domain.ProvisionedResource, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sources = append(n.sources, source)
}

func (n *recordingNotifier) Sources() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sources...)
}

type fixture struct {
	svc         domain.Service
	repo        domain.Repository
	gateway     *mockGateway
	provisioner *fakeProvisioner
	notifier    *recordingNotifier
	clock       *clock.FakeClock
}

func newFixture(t *testing.T, opts ...func(*Params)) *fixture {
	t.Helper()

	tiers, err := catalog.NewStatic(catalog.DefaultTiers())
	require.NoError(t, err)

	clk := clock.NewFakeClock(now)
	f := &fixture{
		repo:        repository.NewMemory(clk),
		gateway:     &mockGateway{},
		provisioner: &fakeProvisioner{},
		notifier:    &recordingNotifier{},
		clock:       clk,
	}
	cfg := config.Config{}
	cfg.Payment.DefaultExpiry = 30 * time.Second
	cfg.Payment.QRRenderURL = "https://quickchart.io/qr?text=%s&size=300&margin=1"

	p := Params{
		Log:         zap.NewNop(),
		Clock:       clk,
		Config:      cfg,
		Repo:        f.repo,
		Catalog:     tiers,
		Gateway:     f.gateway,
		Provisioner: f.provisioner,
		Notifier:    f.notifier,
	}
	for _, opt := range opts {
		opt(&p)
	}
	f.repo = p.Repo
	f.svc = New(p)
	return f
}

// placePaid places a 2gb order and marks it paid through a status check.
func (f *fixture) placePaid(t *testing.T) domain.Order {
	t.Helper()
	ctx := context.Background()

	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN-1", QRISString: "0002010102"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "budi@example.com", Tier: "2gb"})
	require.NoError(t, err)

	f.gateway.On("QueryPaymentStatus", mock.Anything, placed.Order.ID).Return(domain.Status("settled"), nil).Once()
	res, err := f.svc.CheckPaymentStatus(ctx, placed.Order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, res.Status)
	return placed.Order
}

func TestPlaceOrderUsesCatalogPrice(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(id string) bool {
		return strings.HasPrefix(id, "ORDER_")
	}), int64(500)).Return(domain.Payment{PaymentNumber: "PN-9", QRISString: "00020101 02"}, nil).Once()

	res, err := f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Contact:  " budi@example.com ",
		Tier:     "2GB",
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)
	f.gateway.AssertExpectations(t)

	order := res.Order
	assert.True(t, strings.HasPrefix(order.ID, "ORDER_"))
	assert.Equal(t, int64(500), order.Amount)
	assert.Equal(t, domain.TierCode("2gb"), order.Tier)
	assert.Equal(t, "budi@example.com", order.Contact)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, now.Add(30*time.Second), order.ExpiresAt)
	assert.Equal(t, "https://quickchart.io/qr?text=00020101+02&size=300&margin=1", res.QRImageURL)

	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", stored.ClientIP)
	assert.Equal(t, int64(500), stored.Amount)
}

func TestPlaceOrderKeepsGatewayExpiry(t *testing.T) {
	f := newFixture(t)
	expiry := now.Add(15 * time.Minute)
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN", ExpiresAt: expiry}, nil).Once()

	res, err := f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "unlimited"})
	require.NoError(t, err)
	assert.Equal(t, expiry, res.Order.ExpiresAt)
	assert.Equal(t, domain.TierUnlimited, res.Order.Tier)
	assert.Empty(t, res.QRImageURL)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "11gb"})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)

	_, err = f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Contact: "not-an-email", Tier: "1gb"})
	assert.ErrorIs(t, err, domain.ErrInvalidContact)

	_, err = f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Contact: "", Tier: "1gb"})
	assert.ErrorIs(t, err, domain.ErrInvalidContact)

	f.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlaceOrderGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{}, errors.New("status 503")).Once()

	_, err := f.svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "3gb"})
	assert.ErrorIs(t, err, domain.ErrPaymentInitiationFailed)
}

func TestCheckPaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CheckPaymentStatus(ctx, "ORDER_MISSING")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "1gb"})
	require.NoError(t, err)
	id := placed.Order.ID

	f.gateway.On("QueryPaymentStatus", mock.Anything, id).Return(domain.Status("PENDING"), nil).Once()
	res, err := f.svc.CheckPaymentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, placed.Order.ExpiresAt, res.ExpiresAt)

	f.gateway.On("QueryPaymentStatus", mock.Anything, id).Return(domain.Status(""), errors.New("timeout")).Once()
	_, err = f.svc.CheckPaymentStatus(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPaymentStatusFailed)

	f.gateway.On("QueryPaymentStatus", mock.Anything, id).Return(domain.Status("expired"), nil).Once()
	res, err = f.svc.CheckPaymentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, res.Status)

	// Expired is terminal: the gateway is not consulted again.
	res, err = f.svc.CheckPaymentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, res.Status)
	f.gateway.AssertExpectations(t)
}

func TestProvisionBeforePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "1gb"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.ProvisionResource(ctx, placed.Order.ID)
		assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
	}
	assert.Equal(t, int32(0), f.provisioner.calls.Load())

	_, err = f.svc.ProvisionResource(ctx, "ORDER_MISSING")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestPaidOrderProvisionsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placePaid(t)

	resource, err := f.svc.ProvisionResource(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "budi", resource.Username)
	assert.Equal(t, domain.ResourceLimits{MemoryMB: 2048, DiskMB: 2048, CPUPercent: 60}, resource.Limits)

	_, err = f.svc.ProvisionResource(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProvisioned)

	assert.Equal(t, int32(1), f.provisioner.calls.Load())
	assert.Equal(t, []string{SourceAPI}, f.notifier.Sources())

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsProvisioned())
	require.NotNil(t, stored.Provisioned)
	assert.Equal(t, resource, *stored.Provisioned)
}

func TestExpiredOrderCannotProvision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "2gb"})
	require.NoError(t, err)

	f.gateway.On("QueryPaymentStatus", mock.Anything, placed.Order.ID).Return(domain.Status("cancel"), nil).Once()
	res, err := f.svc.CheckPaymentStatus(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, res.Status)

	_, err = f.svc.ProvisionResource(ctx, placed.Order.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)

	cb, err := f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: placed.Order.ID, Status: "settled"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, cb.Status)
	assert.Equal(t, int32(0), f.provisioner.calls.Load())
}

func TestProvisioningFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placePaid(t)

	f.provisioner.err = errors.New("Email has already been taken")
	_, err := f.svc.ProvisionResource(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "Email has already been taken")

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvisionNone, stored.Provisioning)
	assert.Empty(t, f.notifier.Sources())

	f.provisioner.err = nil
	_, err = f.svc.ProvisionResource(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.provisioner.calls.Load())
}

// failingCompleteRepo loses the write that records a provisioned server.
type failingCompleteRepo struct {
	domain.Repository
}

func (r failingCompleteRepo) CompleteProvisioning(context.Context, string, domain.ProvisionedResource) error {
	return errors.New("database is locked")
}

func TestCompleteProvisioningFailureKeepsResourceRecoverable(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	f := newFixture(t, func(p *Params) {
		p.Log = zap.New(core)
		p.Repo = failingCompleteRepo{Repository: p.Repo}
	})
	ctx := context.Background()
	order := f.placePaid(t)

	_, err := f.svc.ProvisionResource(ctx, order.ID)
	require.Error(t, err)
	assert.Equal(t, []string{SourceAPI}, f.notifier.Sources())

	entries := logs.FilterMessage("recording provisioned resource failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 7, fields["server_id"])
	assert.Equal(t, "srv7", fields["identifier"])
	assert.Equal(t, "budi", fields["username"])
	assert.NotContains(t, fields, "password")
	for _, v := range fields {
		assert.NotEqual(t, "AbcdEfghIjkl", v)
	}
}

func TestCallbackLeavesWebhookMetricToTransport(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.New(metrics.Config{ServiceName: "novacat"}, provider)
	require.NoError(t, err)
	f := newFixture(t, func(p *Params) { p.Metrics = m })
	ctx := context.Background()
	order := f.placePaid(t)

	_, err = f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: order.ID, Status: "settled"})
	require.NoError(t, err)
	_, err = f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: "ORDER_NOPE", Status: "settled"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names = append(names, metric.Name)
		}
	}
	assert.Contains(t, names, "novacat_provisioning_total")
	assert.NotContains(t, names, "novacat_webhooks_total")
}

func TestCallbackUnknownOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.HandleProviderCallback(context.Background(), domain.CallbackPayload{OrderID: "ORDER_NOPE", Status: "settled"})
	require.NoError(t, err)
	assert.False(t, res.Known)
	assert.Equal(t, int32(0), f.provisioner.calls.Load())

	_, err = f.svc.HandleProviderCallback(context.Background(), domain.CallbackPayload{Status: "settled"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)
}

func TestCallbackProvisionsPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "sari@example.com", Tier: "unli"})
	require.NoError(t, err)

	res, err := f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: placed.Order.ID, Status: "SUCCESS", Amount: 500})
	require.NoError(t, err)
	assert.True(t, res.Known)
	assert.True(t, res.Provisioned)
	assert.Equal(t, domain.StatusPaid, res.Status)
	assert.Empty(t, res.ProvisionError)

	// A repeated webhook delivery does nothing new.
	res, err = f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: placed.Order.ID, Status: "settled"})
	require.NoError(t, err)
	assert.True(t, res.Provisioned)

	assert.Equal(t, int32(1), f.provisioner.calls.Load())
	assert.Equal(t, []string{SourceWebhook}, f.notifier.Sources())

	_, err = f.svc.ProvisionResource(ctx, placed.Order.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProvisioned)
}

func TestCallbackReportsProvisioningFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, int64(500)).
		Return(domain.Payment{PaymentNumber: "PN"}, nil).Once()
	placed, err := f.svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Contact: "a@b.co", Tier: "1gb"})
	require.NoError(t, err)

	f.provisioner.err = errors.New("panel unreachable")
	res, err := f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: placed.Order.ID, Status: "settled"})
	require.NoError(t, err)
	assert.True(t, res.Known)
	assert.False(t, res.Provisioned)
	assert.Contains(t, res.ProvisionError, "panel unreachable")
}

func TestConcurrentProvisionAndCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placePaid(t)
	f.provisioner.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProvisionResource(ctx, order.ID)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.HandleProviderCallback(ctx, domain.CallbackPayload{OrderID: order.ID, Status: "settled"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrAlreadyProvisioned)
		}
	}
	assert.Equal(t, int32(1), f.provisioner.calls.Load())
	assert.Len(t, f.notifier.Sources(), 1)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetOrder(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)
	_, err = f.svc.GetOrder(context.Background(), "ORDER_X")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
