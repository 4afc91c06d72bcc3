package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/events"
	"bookpoint/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBookingService(store *fakeStore, opts BookingOptions) *BookingService {
	logger := zerolog.Nop()
	return NewBookingService(store, nopLocker{}, testEngine(store), nil, nil, opts, &logger)
}

func haircut(start, end string) domain.CommitRequest {
	return domain.CommitRequest{
		ServiceID: 1,
		StaffID:   10,
		Date:      "2030-01-07",
		StartTime: start,
		EndTime:   end,
		PartySize: 1,
		Customer:  models.Customer{FirstName: "Ivan", Email: "ivan@example.com"},
	}
}

func TestCommitBooking_Success(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}

	bus := new(MockEventPublisher)
	worker := new(MockSyncWorker)
	bus.On("PublishJSON", events.EventBookingCreated, mock.AnythingOfType("events.BookingEventPayload")).Return(nil).Once()
	worker.On("EnqueueTask", mock.Anything, models.SyncTaskUpsert, mock.AnythingOfType("*models.Booking")).Return(nil).Once()

	locker := new(MockLocker)
	released := false
	locker.On("Acquire", mock.Anything, "slot:10:2030-01-07", 3*time.Second).
		Return(func() { released = true }, nil).Once()

	logger := zerolog.Nop()
	s := NewBookingService(store, locker, testEngine(store), bus, worker, BookingOptions{LockTTL: 3 * time.Second}, &logger)

	req := haircut("09:05", "10:05")
	req.ExtraIDs = []int64{100}
	b, err := s.CommitBooking(context.Background(), req)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), b.BookingCode)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, bookingDay, b.Date)
	assert.Equal(t, "09:05", b.StartTime)
	assert.Equal(t, "10:05", b.EndTime)
	assert.Equal(t, 5, b.BufferBefore)
	assert.Equal(t, 5, b.BufferAfter)
	assert.Equal(t, []int64{100}, b.ExtraIDs)
	assert.True(t, decimal.RequireFromString("32.50").Equal(b.Total))
	assert.NotZero(t, b.ID)
	assert.True(t, released)

	stored, err := store.GetBookingByCode(context.Background(), b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, "ivan@example.com", stored.Customer.Email)

	bus.AssertExpectations(t)
	worker.AssertExpectations(t)
	locker.AssertExpectations(t)
}

func TestCommitBooking_DefaultsPartySize(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}

	req := haircut("09:05", "09:35")
	req.PartySize = 0
	b, err := newBookingService(store, BookingOptions{}).CommitBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, b.PartySize)
}

func TestCommitBooking_SlotTakenAfterQuery(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "10:20", true)}
	s := newBookingService(store, BookingOptions{})

	_, err := s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
	require.NoError(t, err)

	_, err = s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))

	// neighbour is still free
	_, err = s.CommitBooking(context.Background(), haircut("09:45", "10:15"))
	assert.NoError(t, err)
}

func TestCommitBooking_FailureDoesNotPublish(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "10:20", true)}
	store.book(models.Booking{BookingCode: "taken", StaffID: 10, Date: bookingDay, StartTime: "09:05", EndTime: "09:35", BufferBefore: 5, BufferAfter: 5, PartySize: 1, Status: models.StatusPending})

	bus := new(MockEventPublisher)
	worker := new(MockSyncWorker)
	logger := zerolog.Nop()
	s := NewBookingService(store, nopLocker{}, testEngine(store), bus, worker, BookingOptions{}, &logger)

	_, err := s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitBooking_PublishFailureKeepsBooking(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "10:20", true)}

	bus := new(MockEventPublisher)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	worker := new(MockSyncWorker)
	worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue down"))
	logger := zerolog.Nop()
	s := NewBookingService(store, nopLocker{}, testEngine(store), bus, worker, BookingOptions{}, &logger)

	b, err := s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
	require.NoError(t, err)
	_, err = store.GetBookingByCode(context.Background(), b.BookingCode)
	assert.NoError(t, err)
}

func TestCommitBooking_GroupCapacity(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}
	s := newBookingService(store, BookingOptions{})

	group := func(size int) domain.CommitRequest {
		return domain.CommitRequest{ServiceID: 2, StaffID: 10, Date: "2030-01-07", StartTime: "09:00", EndTime: "10:00", PartySize: size}
	}

	_, err := s.CommitBooking(context.Background(), group(3))
	require.NoError(t, err)

	_, err = s.CommitBooking(context.Background(), group(2))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))

	_, err = s.CommitBooking(context.Background(), group(1))
	require.NoError(t, err)

	_, err = s.CommitBooking(context.Background(), group(1))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))
}

func TestCommitBooking_InvalidInput(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}
	s := newBookingService(store, BookingOptions{})

	tests := []struct {
		name string
		edit func(r *domain.CommitRequest)
	}{
		{"BadDate", func(r *domain.CommitRequest) { r.Date = "07.01.2030" }},
		{"BadTime", func(r *domain.CommitRequest) { r.StartTime = "9am" }},
		{"InvertedRange", func(r *domain.CommitRequest) { r.StartTime, r.EndTime = "09:35", "09:05" }},
		{"WrongLength", func(r *domain.CommitRequest) { r.EndTime = "09:50" }},
		{"PartyTooLarge", func(r *domain.CommitRequest) { r.PartySize = 2 }},
		{"NegativeParty", func(r *domain.CommitRequest) { r.PartySize = -1 }},
		{"PastDate", func(r *domain.CommitRequest) { r.Date = "2029-12-01" }},
		{"TooFar", func(r *domain.CommitRequest) { r.Date = "2033-01-01" }},
		{"UnknownExtra", func(r *domain.CommitRequest) { r.ExtraIDs = []int64{999} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := haircut("09:05", "09:35")
			tt.edit(&req)
			_, err := s.CommitBooking(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err), err.Error())
		})
	}
}

func TestCommitBooking_BelowCapacityMin(t *testing.T) {
	store := seedStore()
	svc := store.services[2]
	svc.CapacityMin = 2
	store.services[2] = svc
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}

	_, err := newBookingService(store, BookingOptions{}).CommitBooking(context.Background(),
		domain.CommitRequest{ServiceID: 2, StaffID: 10, Date: "2030-01-07", StartTime: "09:00", EndTime: "10:00", PartySize: 1})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestCommitBooking_OffGrid(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}

	_, err := newBookingService(store, BookingOptions{}).CommitBooking(context.Background(), haircut("09:10", "09:40"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))
}

func TestCommitBooking_NotFound(t *testing.T) {
	store := seedStore()
	s := newBookingService(store, BookingOptions{})

	req := haircut("09:05", "09:35")
	req.StaffID = 404
	_, err := s.CommitBooking(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	req = haircut("09:05", "09:35")
	req.ServiceID = 404
	_, err = s.CommitBooking(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCommitBooking_LockFailure(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}

	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	logger := zerolog.Nop()
	s := NewBookingService(store, locker, testEngine(store), nil, nil, BookingOptions{}, &logger)

	_, err := s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// codeSequence yields the given codes in order and counts draws.
type codeSequence struct {
	codes []string
	draws int
}

func (c *codeSequence) next() (string, error) {
	code := c.codes[c.draws]
	c.draws++
	return code, nil
}

func TestCommitBooking_CodeCollisions(t *testing.T) {
	collide := func(store *fakeStore, n int) []string {
		var codes []string
		for i := 0; i < n; i++ {
			code := fmt.Sprintf("%016x", i+1)
			store.codes[code] = true
			codes = append(codes, code)
		}
		return codes
	}

	t.Run("FourCollisionsThenSuccess", func(t *testing.T) {
		store := seedStore()
		store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}
		seq := &codeSequence{codes: append(collide(store, 4), "00000000000000ff")}

		b, err := newBookingService(store, BookingOptions{CodeGenerator: seq.next}).
			CommitBooking(context.Background(), haircut("09:05", "09:35"))
		require.NoError(t, err)
		assert.Equal(t, "00000000000000ff", b.BookingCode)
		assert.Equal(t, 5, seq.draws)
	})

	t.Run("AllAttemptsCollide", func(t *testing.T) {
		store := seedStore()
		store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}
		seq := &codeSequence{codes: append(collide(store, 5), "00000000000000ff")}

		_, err := newBookingService(store, BookingOptions{CodeGenerator: seq.next}).
			CommitBooking(context.Background(), haircut("09:05", "09:35"))
		assert.True(t, errors.Is(err, domain.ErrCodeGenerationExhausted))
		assert.Equal(t, 5, seq.draws, "no sixth draw")

		list, _ := store.ListBookings(context.Background(), 10, bookingDay, models.ActiveStatuses)
		assert.Empty(t, list, "nothing is inserted")
	})

	t.Run("GeneratorError", func(t *testing.T) {
		store := seedStore()
		store.blocks = []models.AvailabilityBlock{block(10, "09:00", "11:00", true)}
		gen := func() (string, error) { return "", errors.New("entropy exhausted") }

		_, err := newBookingService(store, BookingOptions{CodeGenerator: gen}).
			CommitBooking(context.Background(), haircut("09:05", "09:35"))
		assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	})
}

func TestCommitBooking_ConcurrentSingleSeat(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "10:20", true)}
	s := newBookingService(store, BookingOptions{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.CommitBooking(context.Background(), haircut("09:05", "09:35"))
		}(i)
	}
	close(start)
	wg.Wait()

	ok, unavailable := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, unavailable)
}

func TestCommitBooking_CancelledContext(t *testing.T) {
	store := seedStore()
	store.blocks = []models.AvailabilityBlock{block(10, "09:00", "10:20", true)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBookingService(store, BookingOptions{}).CommitBooking(ctx, haircut("09:05", "09:35"))
	require.Error(t, err)

	list, _ := store.ListBookings(context.Background(), 10, bookingDay, models.ActiveStatuses)
	assert.Empty(t, list)
}

func TestNewBookingCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewBookingCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9a-f]{16}$`, code)
		seen[code] = true
	}
	assert.Len(t, seen, 100)
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeStore, *MockEventPublisher, *MockSyncWorker, *BookingService) {
		store := seedStore()
		store.book(models.Booking{BookingCode: "abc", StaffID: 10, Date: bookingDay, StartTime: "09:05", EndTime: "09:35", PartySize: 1, Status: models.StatusPending})
		bus := new(MockEventPublisher)
		worker := new(MockSyncWorker)
		logger := zerolog.Nop()
		return store, bus, worker, NewBookingService(store, nopLocker{}, testEngine(store), bus, worker, BookingOptions{}, &logger)
	}

	t.Run("Approve", func(t *testing.T) {
		_, bus, worker, s := setup()
		bus.On("PublishJSON", events.EventBookingApproved, mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", mock.Anything, models.SyncTaskUpdateStatus, mock.Anything).Return(nil).Once()

		b, err := s.UpdateBookingStatus(ctx, "ABC", "approved")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, b.Status)
		assert.Equal(t, int64(2), b.Version)
		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
	})

	t.Run("CancelWithAlternateSpelling", func(t *testing.T) {
		_, bus, worker, s := setup()
		bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", mock.Anything, models.SyncTaskUpdateStatus, mock.Anything).Return(nil).Once()

		b, err := s.UpdateBookingStatus(ctx, "abc", "canceled")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, b.Status)
	})

	t.Run("IllegalTransition", func(t *testing.T) {
		_, bus, worker, s := setup()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
		worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		_, err := s.UpdateBookingStatus(ctx, "abc", models.StatusApproved)
		require.NoError(t, err)

		_, err = s.UpdateBookingStatus(ctx, "abc", models.StatusPending)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		_, err = s.UpdateBookingStatus(ctx, "abc", models.StatusCancelled)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("VersionRace", func(t *testing.T) {
		store, bus, _, s := setup()
		store.versionRace = true

		_, err := s.UpdateBookingStatus(ctx, "abc", models.StatusApproved)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		_, _, _, s := setup()
		_, err := s.UpdateBookingStatus(ctx, "nope", models.StatusApproved)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		_, err = s.GetBooking(ctx, "  ")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestGetBookingsByDateRange(t *testing.T) {
	store := seedStore()
	store.book(models.Booking{BookingCode: "a", StaffID: 10, Date: bookingDay, StartTime: "09:00", EndTime: "10:00", Status: models.StatusPending})
	store.book(models.Booking{BookingCode: "b", StaffID: 10, Date: bookingDay.AddDate(0, 0, 10), StartTime: "09:00", EndTime: "10:00", Status: models.StatusPending})
	s := newBookingService(store, BookingOptions{})

	list, err := s.GetBookingsByDateRange(context.Background(), bookingDay, bookingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].BookingCode)

	_, err = s.GetBookingsByDateRange(context.Background(), bookingDay, bookingDay.AddDate(0, 0, -1))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
