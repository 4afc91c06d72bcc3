package service

import (
	"context"
	"sync"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-memory Repository. WithinStaffDay is serialized and
// discards staged inserts when fn fails.
type fakeStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	services map[int64]models.Service
	extras   []models.Extra
	staff    map[int64]models.StaffMember
	blocks   []models.AvailabilityBlock
	bookings []models.Booking
	settings map[string]string
	codes    map[string]bool
	nextID   int64

	getServiceErr error
	versionRace   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services: make(map[int64]models.Service),
		staff:    make(map[int64]models.StaffMember),
		settings: make(map[string]string),
		codes:    make(map[string]bool),
	}
}

func (s *fakeStore) GetService(_ context.Context, id int64) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getServiceErr != nil {
		return nil, s.getServiceErr
	}
	svc, ok := s.services[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "service %d not found", id)
	}
	return &svc, nil
}

func (s *fakeStore) GetExtras(_ context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Extra
	for _, x := range s.extras {
		if x.ServiceID == serviceID && x.Active && want[x.ID] {
			out = append(out, x)
		}
	}
	return out, nil
}

func (s *fakeStore) GetStaffSchedule(_ context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[staffID]
	if !ok {
		return nil, nil, domain.Errorf(domain.KindNotFound, "staff %d not found", staffID)
	}
	var blocks []models.AvailabilityBlock
	for _, b := range s.blocks {
		if b.StaffID == staffID && b.Date.Equal(date) {
			blocks = append(blocks, b)
		}
	}
	return &st, blocks, nil
}

func (s *fakeStore) ListBookings(_ context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.StaffID == staffID && b.Date.Equal(date) && contains(statuses, b.Status) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) WithinStaffDay(ctx context.Context, _ int64, _ time.Time, fn func(tx domain.BookingTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &fakeTx{fakeStore: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range tx.staged {
		s.bookings = append(s.bookings, b)
		s.codes[b.BookingCode] = true
	}
	return nil
}

func (s *fakeStore) GetBookingByCode(_ context.Context, code string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.BookingCode == code {
			return &b, nil
		}
	}
	return nil, domain.Errorf(domain.KindNotFound, "booking %s not found", code)
}

func (s *fakeStore) UpdateBookingStatusWithVersion(_ context.Context, id, version int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		b := &s.bookings[i]
		if b.ID != id {
			continue
		}
		if s.versionRace || b.Version != version {
			return domain.Errorf(domain.KindInvalidInput, "booking was modified concurrently")
		}
		b.Status = status
		b.Version++
		return nil
	}
	return domain.Errorf(domain.KindNotFound, "booking %d not found", id)
}

func (s *fakeStore) GetBookingsByDateRange(_ context.Context, start, end time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) ListServices(context.Context) ([]models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Service
	for _, svc := range s.services {
		if svc.Active {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *fakeStore) ListStaff(_ context.Context, serviceID int64) ([]models.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StaffMember
	for _, st := range s.staff {
		if st.Active && (serviceID == 0 || st.Provides(serviceID)) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *fakeStore) ListExtras(_ context.Context, serviceID int64) ([]models.Extra, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Extra
	for _, x := range s.extras {
		if x.ServiceID == serviceID && x.Active {
			out = append(out, x)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *fakeStore) book(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	if b.Version == 0 {
		b.Version = 1
	}
	s.bookings = append(s.bookings, b)
	s.codes[b.BookingCode] = true
}

type fakeTx struct {
	*fakeStore
	staged []models.Booking
}

func (t *fakeTx) BookingCodeExists(_ context.Context, code string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.codes[code], nil
}

func (t *fakeTx) InsertBooking(_ context.Context, b *models.Booking) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	b.ID = t.nextID
	b.Version = 1
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	t.staged = append(t.staged, *b)
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type MockSyncWorker struct {
	mock.Mock
}

func (m *MockSyncWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	return m.Called(ctx, taskType, booking).Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
