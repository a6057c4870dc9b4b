package order

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/scent-shop/internal/domain/auth"
	"github.com/xenking/scent-shop/internal/domain/product"
)

const instrumentationName = "github.com/xenking/scent-shop/internal/domain/order"

// MaxQuantity is the largest quantity a single line may request. Quantities
// and stock are stored as 32-bit integers.
const MaxQuantity = math.MaxInt32

// LineRequest is one (product, quantity) pair of an order request.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID          string
	Lines           []LineRequest
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
}

func (r PlaceOrderRequest) validate() error {
	if len(r.Lines) == 0 {
		return ErrEmptyOrder
	}
	for _, l := range r.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return ErrMissingProduct
		}
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
	}
	if r.UserID == "" {
		return ErrMissingUser
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		return ErrPaymentMethodRequired
	}
	return nil
}

// Config bounds the compensating release of reserved stock.
type Config struct {
	// RestoreAttempts is the total number of tries per reservation.
	RestoreAttempts   int
	RestoreBackoff    time.Duration
	RestoreMaxBackoff time.Duration
	// RestoreTimeout caps the whole release, across all reservations.
	RestoreTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.RestoreAttempts <= 0 {
		c.RestoreAttempts = 5
	}
	if c.RestoreBackoff <= 0 {
		c.RestoreBackoff = 50 * time.Millisecond
	}
	if c.RestoreMaxBackoff < c.RestoreBackoff {
		c.RestoreMaxBackoff = max(time.Second, c.RestoreBackoff)
	}
	if c.RestoreTimeout <= 0 {
		c.RestoreTimeout = 10 * time.Second
	}
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service encapsulates order placement and the order read/status paths.
type Service struct {
	products product.Repository
	orders   Repository
	cfg      Config

	now   func() time.Time
	newID func() string

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	rejected       metric.Int64Counter
	unrestored     metric.Int64Counter
	duration       metric.Float64Histogram
}

// NewService creates an order Service over the given repositories.
func NewService(products product.Repository, orders Repository, cfg Config, opts ...Option) (*Service, error) {
	cfg.setDefaults()
	s := &Service{
		products:       products,
		orders:         orders,
		cfg:            cfg,
		now:            time.Now,
		newID:          uuid.NewString,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.placed, err = meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Orders placed successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.rejected, err = meter.Int64Counter("shop.orders.rejected",
		metric.WithDescription("Order placements that failed, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "orders rejected counter")
	}
	if s.unrestored, err = meter.Int64Counter("shop.stock.reconciliation_required",
		metric.WithDescription("Reservations left unrestored or unconfirmed after a failed placement"),
	); err != nil {
		return nil, errors.Wrap(err, "reconciliation counter")
	}
	if s.duration, err = meter.Float64Histogram("shop.orders.place.duration",
		metric.WithDescription("Order placement latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "placement duration histogram")
	}

	return s, nil
}

// PlaceOrder reserves stock for every line, prices the order from the
// reserved products, and persists it with status pending.
//
// Either the order is created and all stock stays reserved, or no order is
// created and every reservation made by this call is released. The only
// exception is a release that cannot be confirmed: the returned
// *PersistenceError then lists the affected reservations.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(
			attribute.String("order.user_id", req.UserID),
			attribute.Int("order.lines", len(req.Lines)),
		),
	)
	start := time.Now()
	defer func() {
		s.observe(ctx, span, start, rerr)
		span.End()
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.checkAvailability(ctx, req.Lines); err != nil {
		return nil, err
	}

	lines, err := s.reserve(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		TotalPrice:      LinesTotal(lines),
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, s.abort(ctx, lines, &PersistenceError{Op: "create order", Err: err})
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	return o, nil
}

// checkAvailability resolves every product and compares the total demand per
// product against the current stock. Nothing is mutated here; the conditional
// decrement in reserve stays authoritative.
func (s *Service) checkAvailability(ctx context.Context, lines []LineRequest) error {
	// int64 keeps the sum of MaxQuantity-bounded lines from wrapping.
	demand := make(map[string]int64, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, seen := demand[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		demand[l.ProductID] += int64(l.Quantity)
	}

	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return &PersistenceError{Op: "load products", Err: err}
	}
	stock := make(map[string]int, len(found))
	for _, p := range found {
		stock[p.ID] = p.Stock
	}

	for _, id := range ids {
		if _, ok := stock[id]; !ok {
			return &ProductNotFoundError{ProductID: id}
		}
	}
	for _, id := range ids {
		if demand[id] > int64(stock[id]) {
			return &InsufficientStockError{
				ProductID: id,
				Requested: int(min(demand[id], math.MaxInt)),
				Available: stock[id],
			}
		}
	}
	return nil
}

// reserve decrements stock line by line. On the first line that cannot be
// reserved, everything taken so far is released.
//
// A decrement that fails with an error has an unknown outcome and is not
// released: leaving stock claimed can undersell but never oversells. It is
// reported in PersistenceError.Unconfirmed for reconciliation.
func (s *Service) reserve(ctx context.Context, requested []LineRequest) ([]Line, error) {
	taken := make([]Line, 0, len(requested))
	for _, l := range requested {
		price, ok, err := s.products.DecrementStock(ctx, l.ProductID, l.Quantity)
		switch {
		case err != nil && errors.Is(err, product.ErrNotFound):
			return nil, s.abort(ctx, taken, &ProductNotFoundError{ProductID: l.ProductID})
		case err != nil:
			zctx.From(ctx).Error("Stock decrement outcome unknown, reconciliation required",
				zap.String("product_id", l.ProductID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err),
			)
			s.unrestored.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", "unconfirmed")))
			return nil, s.abort(ctx, taken, &PersistenceError{
				Op:          "reserve stock for product " + l.ProductID,
				Err:         err,
				Unconfirmed: []Reservation{{ProductID: l.ProductID, Quantity: l.Quantity}},
			})
		case !ok:
			return nil, s.abort(ctx, taken, &InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: -1,
			})
		}
		taken = append(taken, Line{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price})
	}
	return taken, nil
}

// abort releases taken and returns cause, upgraded to a reconciliation
// PersistenceError if some stock could not be restored.
func (s *Service) abort(ctx context.Context, taken []Line, cause error) error {
	unrestored := s.release(ctx, taken)
	if len(unrestored) == 0 {
		return cause
	}
	var perr *PersistenceError
	if errors.As(cause, &perr) {
		perr.Unrestored = unrestored
		return perr
	}
	return &PersistenceError{Op: "release reserved stock", Err: cause, Unrestored: unrestored}
}

// release restores every reservation in parallel and returns the ones that
// could not be confirmed. It ignores caller cancellation.
func (s *Service) release(ctx context.Context, taken []Line) []Reservation {
	if len(taken) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RestoreTimeout)
	defer cancel()

	lg := zctx.From(ctx)
	failed := make([]bool, len(taken))
	var g errgroup.Group
	for i, l := range taken {
		g.Go(func() error {
			if err := s.restore(ctx, l.ProductID, l.Quantity); err != nil {
				failed[i] = true
				lg.Error("Stock restoration failed, reconciliation required",
					zap.String("product_id", l.ProductID),
					zap.Int("quantity", l.Quantity),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	var unrestored []Reservation
	for i, l := range taken {
		if failed[i] {
			unrestored = append(unrestored, Reservation{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	if len(unrestored) > 0 {
		s.unrestored.Add(ctx, int64(len(unrestored)),
			metric.WithAttributes(attribute.String("cause", "unrestored")),
		)
	}
	return unrestored
}

func (s *Service) restore(ctx context.Context, productID string, qty int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RestoreBackoff
	b.MaxInterval = s.cfg.RestoreMaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.RestoreAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := s.products.RestoreStock(ctx, productID, qty)
		if errors.Is(err, product.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		zctx.From(ctx).Warn("Retrying stock restoration",
			zap.String("product_id", productID),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
}

func (s *Service) observe(ctx context.Context, span trace.Span, start time.Time, err error) {
	outcome := "placed"
	if err != nil {
		outcome = KindOf(err).String()
		var perr *PersistenceError
		if errors.As(err, &perr) && perr.NeedsReconciliation() {
			outcome = "reconciliation_required"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", outcome)))
	} else {
		s.placed.Add(ctx, 1)
	}
	s.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// GetOrder returns the order if the caller owns it or is an administrator.
func (s *Service) GetOrder(ctx context.Context, caller auth.Identity, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !caller.IsAdmin() && o.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListUserOrders returns every order owned by userID, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// ListOrders returns every order, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an existing order to next. Stock is never touched,
// including on cancellation.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &InvalidStatusError{Status: string(next)}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransition(next) {
		return nil, &InvalidStatusError{Status: string(next), From: o.Status}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, o.Status, next, s.now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return updated, nil
}
