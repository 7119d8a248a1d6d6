package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/settlement"
	"checkout-service/internal/store"

	"github.com/shopspring/decimal"
)

// memorySessions round-trips sessions through JSON the way the redis store does.
type memorySessions struct {
	data map[string][]byte
}

func (m *memorySessions) SaveSession(_ context.Context, s *checkout.Session, _ time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.data[s.ID] = b
	return nil
}

func (m *memorySessions) LoadSession(_ context.Context, id string) (*checkout.Session, error) {
	b, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", redisclient.ErrSessionNotFound, id)
	}
	var s checkout.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type memoryLocker struct {
	locks map[string]string
	keys  map[string][]byte
	seq   int
}

func (m *memoryLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, held := m.locks[key]; held {
		return "", nil
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = token
	return token, nil
}

func (m *memoryLocker) ReleaseLock(_ context.Context, key, token string) error {
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *memoryLocker) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.keys[key] = v
	case string:
		m.keys[key] = []byte(v)
	default:
		return fmt.Errorf("unsupported value %T", value)
	}
	return nil
}

func (m *memoryLocker) GetIdempotencyKey(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.keys[key]
	return v, ok, nil
}

type fakeCatalog struct {
	customers map[int64]*models.Customer
	products  map[int64]*models.Product
}

func (f *fakeCatalog) GetCustomerByID(_ context.Context, id int64) (*models.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("customer %d: %w", id, store.ErrNotFound)
}

func (f *fakeCatalog) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
}

func (f *fakeCatalog) SearchCustomers(_ context.Context, term string, _ int) ([]models.Customer, error) {
	out := []models.Customer{}
	for _, c := range f.customers {
		if c.Name == term {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) SearchProducts(_ context.Context, _ string, _ int) ([]models.Product, error) {
	return []models.Product{}, nil
}

func (f *fakeCatalog) GetReceipt(_ context.Context, orderID int64) (*models.Receipt, error) {
	return nil, fmt.Errorf("receipt %d: %w", orderID, store.ErrNotFound)
}

type fakeSettlement struct {
	calls    int
	payloads []checkout.Payload
	onSubmit func(p checkout.Payload)
	result   *settlement.Result
	err      error
}

func (f *fakeSettlement) Submit(_ context.Context, p checkout.Payload) (*settlement.Result, error) {
	f.calls++
	f.payloads = append(f.payloads, p)
	if f.onSubmit != nil {
		f.onSubmit(p)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingPublisher struct {
	submitted []*models.CheckoutSubmittedEvent
	failed    []*models.CheckoutFailedEvent
}

func (r *recordingPublisher) PublishCheckoutSubmitted(_ context.Context, e *models.CheckoutSubmittedEvent) error {
	r.submitted = append(r.submitted, e)
	return nil
}

func (r *recordingPublisher) PublishCheckoutFailed(_ context.Context, e *models.CheckoutFailedEvent) error {
	r.failed = append(r.failed, e)
	return nil
}

type harness struct {
	svc        *CheckoutService
	sessions   *memorySessions
	locker     *memoryLocker
	catalog    *fakeCatalog
	settlement *fakeSettlement
	events     *recordingPublisher
}

var fixedNow = time.Date(2024, time.January, 20, 9, 30, 0, 0, time.UTC)

func newHarness() *harness {
	h := &harness{
		sessions: &memorySessions{data: map[string][]byte{}},
		locker:   &memoryLocker{locks: map[string]string{}, keys: map[string][]byte{}},
		catalog: &fakeCatalog{
			customers: map[int64]*models.Customer{
				7: {ID: 7, Name: "Ana Lima", CreditLimit: decimal.RequireFromString("1000")},
			},
			products: map[int64]*models.Product{
				1: {ID: 1, SKU: "TV-32", Name: "TV 32in", Price: decimal.RequireFromString("125.00")},
				2: {ID: 2, SKU: "FAN-1", Name: "Desk fan", Price: decimal.RequireFromString("80.00")},
			},
		},
		settlement: &fakeSettlement{result: &settlement.Result{OrderID: 1042, Status: "confirmed"}},
		events:     &recordingPublisher{},
	}
	h.svc = NewCheckoutService(h.sessions, h.locker, h.catalog, h.catalog, h.settlement, h.events, Options{})
	h.svc.now = func() time.Time { return fixedNow }
	return h
}
