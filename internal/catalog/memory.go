package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront.org/internal/ids"
)

var _ Service = (*InMemory)(nil)

const (
	defaultPerPage  = 20
	maxPerPage      = 100
	defaultCurrency = "USD"
)

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu         sync.RWMutex
	categories map[string]*Category
	products   map[string]*Product
	orders     map[string]*Order
	assets     map[string]*Asset
	now        func() time.Time
	assetBase  string
}

// Option configures InMemory.
type Option func(*InMemory)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAssetBaseURL sets the prefix of generated asset URLs.
func WithAssetBaseURL(base string) Option {
	return func(s *InMemory) { s.assetBase = strings.TrimRight(base, "/") }
}

// NewInMemory creates an empty catalog.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		categories: make(map[string]*Category),
		products:   make(map[string]*Product),
		orders:     make(map[string]*Order),
		assets:     make(map[string]*Asset),
		now:        time.Now,
		assetBase:  "/uploads",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories ---------------------------------------------------------------

func (s *InMemory) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) GetCategory(ctx context.Context, id string) (Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrInvalid)
	}
	slug := in.Slug
	if slug == "" {
		slug = slugify(name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTaken(slug, "") {
		return Category{}, fmt.Errorf("%w: category slug %q already exists", ErrConflict, slug)
	}
	now := s.now().UTC()
	c := &Category{ID: ids.NewAt(now), Name: name, Slug: slug, Description: in.Description, CreatedAt: now, UpdatedAt: now}
	s.categories[c.ID] = c
	return *c, nil
}

func (s *InMemory) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		c.Name = name
	}
	if in.Slug != "" {
		if s.slugTaken(in.Slug, id) {
			return Category{}, fmt.Errorf("%w: category slug %q already exists", ErrConflict, in.Slug)
		}
		c.Slug = in.Slug
	}
	if in.Description != "" {
		c.Description = in.Description
	}
	c.UpdatedAt = s.now().UTC()
	return *c, nil
}

func (s *InMemory) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return fmt.Errorf("%w: category still has products", ErrConflict)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *InMemory) slugTaken(slug, except string) bool {
	for id, c := range s.categories {
		if c.Slug == slug && id != except {
			return true
		}
	}
	return false
}

// Products -----------------------------------------------------------------

func (s *InMemory) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error) {
	s.mu.RLock()
	matched := make([]Product, 0, len(s.products))
	search := strings.ToLower(f.Search)
	for _, p := range s.products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.MinPrice > 0 && p.PriceCents < f.MinPrice {
			continue
		}
		if f.MaxPrice > 0 && p.PriceCents > f.MaxPrice {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), search) {
			continue
		}
		matched = append(matched, clone(*p))
	}
	s.mu.RUnlock()

	sortProducts(matched, f.Sort)
	page, perPage := paging(f.Page, f.PerPage)
	return pageOf(matched, page, perPage), len(matched), nil
}

func (s *InMemory) GetProduct(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return clone(*p), nil
}

func (s *InMemory) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrInvalid)
	}
	if in.PriceCents == nil {
		return Product{}, fmt.Errorf("%w: product price is required", ErrInvalid)
	}
	if in.CategoryID == nil {
		return Product{}, fmt.Errorf("%w: product category is required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	p := &Product{ID: ids.NewAt(now), Currency: defaultCurrency, CreatedAt: now}
	if err := s.apply(p, in); err != nil {
		return Product{}, err
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return clone(*p), nil
}

func (s *InMemory) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	next := clone(*cur)
	if err := s.apply(&next, in); err != nil {
		return Product{}, err
	}
	next.UpdatedAt = s.now().UTC()
	*cur = next
	return clone(next), nil
}

func (s *InMemory) apply(p *Product, in ProductInput) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.PriceCents != nil {
		if *in.PriceCents < 0 {
			return fmt.Errorf("%w: price must not be negative", ErrInvalid)
		}
		p.PriceCents = *in.PriceCents
	}
	if in.Currency != nil {
		p.Currency = strings.ToUpper(*in.Currency)
	}
	if in.CategoryID != nil {
		if _, ok := s.categories[*in.CategoryID]; !ok {
			return fmt.Errorf("%w: unknown category %s", ErrInvalid, *in.CategoryID)
		}
		p.CategoryID = *in.CategoryID
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			return fmt.Errorf("%w: stock must not be negative", ErrInvalid)
		}
		p.Stock = *in.Stock
	}
	if in.Tags != nil {
		p.Tags = append([]string(nil), in.Tags...)
	}
	return nil
}

func (s *InMemory) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// Orders -------------------------------------------------------------------

func (s *InMemory) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	s.mu.RLock()
	matched := make([]Order, 0)
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, cloneOrder(*o))
	}
	s.mu.RUnlock()

	// Newest first; ids sort by creation time.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	page, perPage := paging(f.Page, f.PerPage)
	return pageOf(matched, page, perPage), len(matched), nil
}

func (s *InMemory) GetOrder(ctx context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(*o), nil
}

// CreateOrder prices the lines at current prices and reserves stock.
func (s *InMemory) CreateOrder(ctx context.Context, userID string, lines []OrderLine) (Order, error) {
	if userID == "" {
		return Order{}, fmt.Errorf("%w: order owner is required", ErrInvalid)
	}
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
		}
		wanted[l.ProductID] += l.Quantity
	}
	currency := ""
	for id, qty := range wanted {
		p, ok := s.products[id]
		if !ok {
			return Order{}, fmt.Errorf("%w: unknown product %s", ErrInvalid, id)
		}
		if p.Stock < qty {
			return Order{}, fmt.Errorf("%w: insufficient stock for %s", ErrConflict, p.Name)
		}
		if currency == "" {
			currency = p.Currency
		} else if currency != p.Currency {
			return Order{}, fmt.Errorf("%w: items use different currencies", ErrInvalid)
		}
	}

	now := s.now().UTC()
	o := &Order{ID: ids.NewAt(now), UserID: userID, Currency: currency, Status: OrderPending, CreatedAt: now, UpdatedAt: now}
	for _, l := range lines {
		p := s.products[l.ProductID]
		o.Items = append(o.Items, OrderItem{ProductID: p.ID, Name: p.Name, Quantity: l.Quantity, UnitPriceCents: p.PriceCents})
		o.TotalCents += p.PriceCents * int64(l.Quantity)
	}
	for id, qty := range wanted {
		s.products[id].Stock -= qty
	}
	s.orders[o.ID] = o
	return cloneOrder(*o), nil
}

// CancelOrder cancels a pending or paid order and releases its stock.
func (s *InMemory) CancelOrder(ctx context.Context, id string) (Order, error) {
	return s.transition(id, OrderCancelled)
}

func (s *InMemory) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (Order, error) {
	return s.transition(id, status)
}

func (s *InMemory) transition(id string, status OrderStatus) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !o.Status.CanTransition(status) {
		return Order{}, fmt.Errorf("%w: order cannot move from %s to %s", ErrConflict, o.Status, status)
	}
	if status == OrderCancelled {
		for _, item := range o.Items {
			if p, ok := s.products[item.ProductID]; ok {
				p.Stock += item.Quantity
			}
		}
	}
	o.Status = status
	o.UpdatedAt = s.now().UTC()
	return cloneOrder(*o), nil
}

// Assets -------------------------------------------------------------------

func (s *InMemory) CreateAsset(ctx context.Context, uploadedBy string, in AssetInput) (Asset, error) {
	name := strings.TrimSpace(in.Filename)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Asset{}, fmt.Errorf("%w: invalid filename", ErrInvalid)
	}
	if in.Size <= 0 {
		return Asset{}, fmt.Errorf("%w: size must be positive", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	a := &Asset{
		ID:          ids.NewAt(now),
		Filename:    name,
		ContentType: in.ContentType,
		Size:        in.Size,
		UploadedBy:  uploadedBy,
		CreatedAt:   now,
	}
	a.URL = s.assetBase + "/" + a.ID + "/" + name
	s.assets[a.ID] = a
	return *a, nil
}

// helpers ------------------------------------------------------------------

func paging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func pageOf[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func sortProducts(ps []Product, by string) {
	var less func(a, b Product) bool
	switch by {
	case "price":
		less = func(a, b Product) bool {
			if a.PriceCents != b.PriceCents {
				return a.PriceCents < b.PriceCents
			}
			return a.ID < b.ID
		}
	case "-price":
		less = func(a, b Product) bool {
			if a.PriceCents != b.PriceCents {
				return a.PriceCents > b.PriceCents
			}
			return a.ID < b.ID
		}
	case "name":
		less = func(a, b Product) bool {
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
	case "-createdAt":
		less = func(a, b Product) bool { return a.ID > b.ID }
	default:
		less = func(a, b Product) bool { return a.ID < b.ID }
	}
	sort.SliceStable(ps, func(i, j int) bool { return less(ps[i], ps[j]) })
}

func clone(p Product) Product {
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
