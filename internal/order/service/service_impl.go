package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	obscontext "github.com/novabot503/novacat/internal/observability/context"
	obslogger "github.com/novabot503/novacat/internal/observability/logger"
	"github.com/novabot503/novacat/internal/observability/metrics"
	"github.com/novabot503/novacat/internal/order/domain"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	orderIDPrefix = "ORDER_"

	SourceAPI     = "api"
	SourceWebhook = "webhook"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	Catalog     domain.TierCatalog
	Gateway     domain.PaymentGateway
	Provisioner domain.Provisioner
	Notifier    domain.Notifier  `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	catalog     domain.TierCatalog
	gateway     domain.PaymentGateway
	provisioner domain.Provisioner
	notifier    domain.Notifier
	metrics     *metrics.Metrics
	tracer      trace.Tracer

	defaultExpiry time.Duration
	qrRenderURL   string
}

func New(p Params) domain.Service {
	expiry := p.Config.Payment.DefaultExpiry
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	return &Service{
		log:           p.Log.Named("order.service"),
		clock:         p.Clock,
		repo:          p.Repo,
		catalog:       p.Catalog,
		gateway:       p.Gateway,
		provisioner:   p.Provisioner,
		notifier:      p.Notifier,
		metrics:       p.Metrics,
		tracer:        otel.Tracer("novacat/order"),
		defaultExpiry: expiry,
		qrRenderURL:   p.Config.Payment.QRRenderURL,
	}
}

func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.place")
	defer span.End()

	contact := strings.TrimSpace(req.Contact)
	if contact == "" || !strings.Contains(contact, "@") {
		return domain.PlaceOrderResult{}, domain.ErrInvalidContact
	}
	tier, ok := s.catalog.Lookup(domain.NormalizeTierCode(req.Tier))
	if !ok {
		s.metrics.RecordOrderPlaced(ctx, "", "invalid_tier")
		return domain.PlaceOrderResult{}, domain.ErrInvalidTier
	}

	now := s.clock.Now()
	orderID := orderIDPrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	ctx = obscontext.WithOrderID(ctx, orderID)
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.tier", string(tier.Code)))
	log := obslogger.WithContext(ctx, s.log)

	payment, err := s.gateway.CreatePayment(ctx, orderID, tier.Price)
	if err != nil {
		log.Warn("payment initiation failed", zap.String("tier", string(tier.Code)), zap.Error(err))
		s.metrics.RecordOrderPlaced(ctx, string(tier.Code), "gateway_error")
		return domain.PlaceOrderResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentInitiationFailed, err)
	}

	expiresAt := payment.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.defaultExpiry)
	}
	order := domain.Order{
		ID:            orderID,
		Contact:       contact,
		Tier:          tier.Code,
		Amount:        tier.Price,
		PaymentNumber: payment.PaymentNumber,
		QRISString:    payment.QRISString,
		ExpiresAt:     expiresAt.UTC(),
		Status:        domain.StatusPending,
		Provisioning:  domain.ProvisionNone,
		ClientIP:      strings.TrimSpace(req.ClientIP),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, order); err != nil {
		s.metrics.RecordOrderPlaced(ctx, string(tier.Code), "store_error")
		return domain.PlaceOrderResult{}, err
	}

	log.Info("order placed",
		zap.String("tier", string(tier.Code)),
		zap.Int64("amount", tier.Price),
		zap.Time("expires_at", order.ExpiresAt),
	)
	s.metrics.RecordOrderPlaced(ctx, string(tier.Code), "success")

	return domain.PlaceOrderResult{
		Order:      order,
		QRImageURL: s.qrImageURL(order.QRISString),
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidOrderID
	}
	return s.repo.Get(ctx, orderID)
}

func (s *Service) CheckPaymentStatus(ctx context.Context, orderID string) (domain.StatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.check_payment")
	defer span.End()

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.StatusResult{}, err
	}
	ctx = obscontext.WithOrderID(ctx, order.ID)

	// Terminal statuses never change, so the gateway is not asked again.
	if order.Status.IsTerminal() {
		s.metrics.RecordPaymentCheck(ctx, string(order.Status))
		return statusResult(order), nil
	}

	status, err := s.gateway.QueryPaymentStatus(ctx, order.ID)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("payment status query failed", zap.Error(err))
		s.metrics.RecordPaymentCheck(ctx, "error")
		return domain.StatusResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentStatusFailed, err)
	}

	updated, err := s.repo.UpdateStatus(ctx, order.ID, domain.NormalizeStatus(string(status)))
	if err != nil {
		return domain.StatusResult{}, err
	}
	if updated.Status != order.Status {
		obslogger.WithContext(ctx, s.log).Info("payment status changed",
			zap.String("from", string(order.Status)),
			zap.String("to", string(updated.Status)),
		)
	}
	s.metrics.RecordPaymentCheck(ctx, string(updated.Status))
	return statusResult(updated), nil
}

func (s *Service) ProvisionResource(ctx context.Context, orderID string) (domain.ProvisionedResource, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.ProvisionedResource{}, err
	}
	if order.Status != domain.StatusPaid {
		return domain.ProvisionedResource{}, domain.ErrPaymentNotConfirmed
	}
	if order.Provisioning != domain.ProvisionNone {
		return domain.ProvisionedResource{}, domain.ErrAlreadyProvisioned
	}
	return s.provision(ctx, order.ID, SourceAPI)
}

func (s *Service) HandleProviderCallback(ctx context.Context, payload domain.CallbackPayload) (domain.CallbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.callback")
	defer span.End()

	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		return domain.CallbackResult{}, domain.ErrInvalidOrderID
	}
	ctx = obscontext.WithOrderID(ctx, orderID)
	log := obslogger.WithContext(ctx, s.log)
	result := domain.CallbackResult{OrderID: orderID}

	order, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		log.Info("callback for unknown order ignored", zap.String("status", payload.Status))
		return result, nil
	}
	if err != nil {
		return domain.CallbackResult{}, err
	}
	result.Known = true

	if payload.Amount > 0 && payload.Amount != order.Amount {
		log.Warn("callback amount differs from order amount",
			zap.Int64("callback_amount", payload.Amount),
			zap.Int64("order_amount", order.Amount),
		)
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, domain.NormalizeStatus(payload.Status))
	if err != nil {
		return domain.CallbackResult{}, err
	}
	result.Status = updated.Status
	result.Provisioned = updated.IsProvisioned()

	if updated.Status != domain.StatusPaid || updated.Provisioning != domain.ProvisionNone {
		return result, nil
	}

	if _, err := s.provision(ctx, orderID, SourceWebhook); err != nil {
		if !errors.Is(err, domain.ErrAlreadyProvisioned) {
			log.Error("provisioning from callback failed", zap.Error(err))
			result.ProvisionError = err.Error()
		}
		return result, nil
	}
	result.Provisioned = true
	return result, nil
}

// provision claims the order, calls the panel and records the outcome. The
// claim is released when the panel call fails so a later attempt can retry.
func (s *Service) provision(ctx context.Context, orderID, source string) (domain.ProvisionedResource, error) {
	ctx, span := s.tracer.Start(ctx, "order.provision", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("provision.source", source),
	))
	defer span.End()
	ctx = obscontext.WithOrderID(ctx, orderID)
	log := obslogger.WithContext(ctx, s.log).With(zap.String("source", source))

	order, err := s.repo.ClaimProvisioning(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProvisioned) {
			s.metrics.RecordProvisioning(ctx, source, "conflict")
		}
		return domain.ProvisionedResource{}, err
	}

	tier, ok := s.catalog.Lookup(order.Tier)
	if !ok {
		s.release(ctx, log, orderID)
		s.metrics.RecordProvisioning(ctx, source, "invalid_tier")
		return domain.ProvisionedResource{}, fmt.Errorf("%w: tier %q is no longer offered", domain.ErrProvisioningFailed, order.Tier)
	}

	resource, err := s.provisioner.Provision(ctx, order.Contact, tier)
	if err != nil {
		log.Error("panel provisioning failed", zap.Error(err))
		s.release(ctx, log, orderID)
		s.metrics.RecordProvisioning(ctx, source, "failed")
		return domain.ProvisionedResource{}, fmt.Errorf("%w: %w", domain.ErrProvisioningFailed, err)
	}

	if err := s.repo.CompleteProvisioning(ctx, orderID, resource); err != nil {
		// The server exists on the panel but the order stays in_progress.
		// Operators recover it from this log line and the notification.
		log.Error("recording provisioned resource failed",
			zap.Int("server_id", resource.ServerID),
			zap.String("identifier", resource.Identifier),
			zap.String("username", resource.Username),
			zap.String("email", resource.Email),
			zap.String("panel_url", resource.PanelURL),
			zap.Error(err),
		)
		s.metrics.RecordProvisioning(ctx, source, "store_error")
		if s.notifier != nil {
			s.notifier.PanelCreated(ctx, order, resource, source)
		}
		return domain.ProvisionedResource{}, err
	}

	log.Info("panel provisioned",
		zap.Int("server_id", resource.ServerID),
		zap.String("identifier", resource.Identifier),
		zap.String("tier", string(tier.Code)),
	)
	s.metrics.RecordProvisioning(ctx, source, "success")

	if s.notifier != nil {
		order.Provisioning = domain.ProvisionDone
		order.Provisioned = &resource
		s.notifier.PanelCreated(ctx, order, resource, source)
	}
	return resource, nil
}

func (s *Service) release(ctx context.Context, log *zap.Logger, orderID string) {
	if err := s.repo.ReleaseProvisioning(ctx, orderID); err != nil {
		log.Error("releasing provisioning claim failed", zap.Error(err))
	}
}

func (s *Service) qrImageURL(qris string) string {
	if qris == "" || s.qrRenderURL == "" {
		return ""
	}
	if strings.Contains(s.qrRenderURL, "%s") {
		return fmt.Sprintf(s.qrRenderURL, url.QueryEscape(qris))
	}
	return s.qrRenderURL + url.QueryEscape(qris)
}

func statusResult(order domain.Order) domain.StatusResult {
	return domain.StatusResult{
		OrderID:   order.ID,
		Status:    order.Status,
		ExpiresAt: order.ExpiresAt,
	}
}
