// Package cartstore holds the storefront cart and mirrors every change into a storage backend.
package cartstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ReploidGI0/storefront-cart/catalog"
	"github.com/ReploidGI0/storefront-cart/storage"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStorageKey is the key the serialized cart is stored under.
const DefaultStorageKey = "cart"

var (
	// ErrInvalidItem is returned by AddToCart for a product without an id or with a negative price.
	ErrInvalidItem = errors.New("invalid cart item")
	// ErrUnknownProduct is returned by AddByID when the catalog has no such product.
	ErrUnknownProduct = errors.New("unknown product")
)

// CartStore owns the catalog snapshot and the current cart.
type CartStore struct {
	mu      sync.RWMutex
	backend storage.Storage
	key     string
	log     logrus.FieldLogger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics storeMetrics

	catalog []catalog.Product
	cart    []CartItem
	total   decimal.Decimal
}

// Option configures a CartStore.
type Option func(*CartStore)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *CartStore) {
		s.log = log
	}
}

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) Option {
	return func(s *CartStore) {
		s.key = key
	}
}

// WithTracer overrides the tracer obtained from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *CartStore) {
		s.tracer = tracer
	}
}

// WithMeter overrides the meter obtained from the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *CartStore) {
		s.meter = meter
	}
}

// NewCartStore loads the catalog from source and the cart from backend.
//
// A missing cart starts empty. A persisted value that does not decode is logged
// and replaced by an empty cart instead of failing construction. Persisted lines
// are repaired (quantity clamped into [MinItems, MaxItems], duplicate and id-less
// lines dropped) and the repaired cart is written back.
func NewCartStore(ctx context.Context, source catalog.Source, backend storage.Storage, opts ...Option) (*CartStore, error) {
	s := &CartStore{
		backend: backend,
		key:     DefaultStorageKey,
		log:     logrus.StandardLogger(),
		tracer:  otel.Tracer("cartstore"),
		meter:   otel.Meter("cartstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("storage_key", s.key)

	m, err := newStoreMetrics(s.meter)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	products, err := source.Products(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load catalog")
	}
	s.catalog = products

	cart, repaired, err := s.loadCart(ctx)
	if err != nil {
		return nil, err
	}
	s.cart = cart
	s.total = cartTotal(cart)
	s.metrics.recordSize(ctx, s.cart)

	if repaired {
		// persist logs the failure; the repaired cart is written again on the next change.
		_ = s.persist(ctx)
	}
	s.log.WithFields(logrus.Fields{
		"products": len(s.catalog),
		"lines":    len(s.cart),
	}).Info("CartStore initialized")
	return s, nil
}

// Catalog returns a copy of the catalog snapshot.
func (s *CartStore) Catalog() []catalog.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Cart returns a copy of the current cart lines, in insertion order.
func (s *CartStore) Cart() []CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CartItem, len(s.cart))
	copy(out, s.cart)
	return out
}

// IsEmpty reports whether the cart has no lines.
func (s *CartStore) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.cart) == 0
}

// CartTotal is the sum of price × quantity over all lines.
func (s *CartStore) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.total
}

// ItemCount is the number of units across all lines.
func (s *CartStore) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.cart {
		n += item.Quantity
	}
	return n
}

// Snapshot is a consistent view of the cart and its derived values.
type Snapshot struct {
	Items     []CartItem      `json:"items"`
	IsEmpty   bool            `json:"isEmpty"`
	CartTotal decimal.Decimal `json:"cartTotal"`
	ItemCount int             `json:"itemCount"`
}

// Snapshot reads the cart and derived values under one lock.
func (s *CartStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]CartItem, len(s.cart))
	copy(items, s.cart)
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return Snapshot{
		Items:     items,
		IsEmpty:   len(items) == 0,
		CartTotal: s.total,
		ItemCount: n,
	}
}

// AddToCart puts one unit of product in the cart.
// A product already in the cart gets its quantity raised by one unless it is at MaxItems,
// in which case nothing changes. A new product is appended with quantity MinItems.
func (s *CartStore) AddToCart(ctx context.Context, product catalog.Product) error {
	ctx, span := s.tracer.Start(ctx, "AddToCart")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", product.ID))

	if product.ID == 0 || product.Price.IsNegative() {
		return errors.Wrapf(ErrInvalidItem, "product %d", product.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := indexOf(s.cart, product.ID); idx >= 0 {
		q := s.cart[idx].Quantity
		if q >= MaxItems {
			return nil
		}
		span.SetAttributes(attribute.Int("app.quantity", q+1))
		return s.commit(ctx, opAdd, withQuantity(s.cart, idx, q+1))
	}

	next := make([]CartItem, len(s.cart), len(s.cart)+1)
	copy(next, s.cart)
	next = append(next, CartItem{Product: product, Quantity: MinItems})
	span.SetAttributes(attribute.Int("app.quantity", MinItems))
	return s.commit(ctx, opAdd, next)
}

// AddByID adds the catalog product with the given id.
func (s *CartStore) AddByID(ctx context.Context, id int64) error {
	s.mu.RLock()
	product, ok := catalog.Find(s.catalog, id)
	s.mu.RUnlock()

	if !ok {
		return errors.Wrapf(ErrUnknownProduct, "product %d", id)
	}
	return s.AddToCart(ctx, product)
}

// RemoveFromCart drops the line for id. Unknown ids are ignored.
func (s *CartStore) RemoveFromCart(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "RemoveFromCart")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", id))

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]CartItem, 0, len(s.cart))
	for _, item := range s.cart {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(s.cart) {
		return nil
	}
	return s.commit(ctx, opRemove, next)
}

// IncreaseQuantity raises the quantity for id by one, up to MaxItems.
func (s *CartStore) IncreaseQuantity(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "IncreaseQuantity")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", id))

	return s.step(ctx, opIncrease, id, 1)
}

// DecreaseQuantity lowers the quantity for id by one, down to MinItems.
// It never removes the line; that takes an explicit RemoveFromCart.
func (s *CartStore) DecreaseQuantity(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "DecreaseQuantity")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", id))

	return s.step(ctx, opDecrease, id, -1)
}

// ClearCart empties the cart.
func (s *CartStore) ClearCart(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "ClearCart")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart) == 0 {
		return nil
	}
	return s.commit(ctx, opClear, []CartItem{})
}

func (s *CartStore) step(ctx context.Context, op string, id int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.cart, id)
	if idx < 0 {
		return nil
	}
	q := s.cart[idx].Quantity + delta
	if q < MinItems || q > MaxItems {
		return nil
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("app.quantity", q))
	return s.commit(ctx, op, withQuantity(s.cart, idx, q))
}

// commit swaps in the next cart and writes it through. Callers hold s.mu.
// The in-memory cart keeps the change even when the write fails.
func (s *CartStore) commit(ctx context.Context, op string, next []CartItem) error {
	s.cart = next
	s.total = cartTotal(next)
	s.metrics.recordChange(ctx, op, next)

	if err := s.persist(ctx); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist cart")
		return err
	}
	return nil
}

func (s *CartStore) persist(ctx context.Context) error {
	data, err := json.Marshal(s.cart)
	if err != nil {
		return errors.Wrap(err, "failed to encode cart")
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		s.metrics.persistFailures.Add(ctx, 1)
		s.log.WithError(err).Error("failed to persist cart")
		return errors.Wrap(err, "failed to persist cart")
	}
	return nil
}

func (s *CartStore) loadCart(ctx context.Context) ([]CartItem, bool, error) {
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []CartItem{}, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read persisted cart")
	}

	var items []CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.WithError(err).Warn("persisted cart is malformed, starting with an empty cart")
		return []CartItem{}, true, nil
	}
	cart, repaired := s.repair(items)
	return cart, repaired, nil
}

func (s *CartStore) repair(items []CartItem) ([]CartItem, bool) {
	cart := make([]CartItem, 0, len(items))
	repaired := false
	for _, item := range items {
		log := s.log.WithField("product_id", item.ID)
		switch {
		case item.ID == 0 || item.Price.IsNegative():
			log.Warn("dropping persisted line without an id or with a negative price")
			repaired = true
			continue
		case indexOf(cart, item.ID) >= 0:
			log.Warn("dropping duplicate persisted line")
			repaired = true
			continue
		case item.Quantity < MinItems:
			log.WithField("quantity", item.Quantity).Warn("raising persisted quantity to the minimum")
			item.Quantity = MinItems
			repaired = true
		case item.Quantity > MaxItems:
			log.WithField("quantity", item.Quantity).Warn("lowering persisted quantity to the maximum")
			item.Quantity = MaxItems
			repaired = true
		}
		cart = append(cart, item)
	}
	return cart, repaired
}
