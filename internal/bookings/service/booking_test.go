package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	availrepo "deskhive/internal/availability/repository"
	bookingerrors "deskhive/internal/bookings/errors"
	"deskhive/internal/bookings/repository"
	"deskhive/internal/bookings/validator"
	"deskhive/pkg/config"
	dbmongo "deskhive/pkg/db/mongo"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/kafka"
	"deskhive/pkg/lock"
	"deskhive/pkg/logger"
	"deskhive/pkg/model"
)

var (
	testBranchID   = strings.Repeat("b", 24)
	testResourceID = strings.Repeat("c", 24)
)

type mockBookingRepo struct {
	mu       sync.Mutex
	nextID   int
	bookings map[string]*model.Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (m *mockBookingRepo) Create(_ context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	booking.ID = fmt.Sprintf("%024x", m.nextID)
	copied := *booking
	m.bookings[booking.ID] = &copied
	return nil
}

func (m *mockBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, bookingerrors.ErrNotFound
	}
	copied := *booking
	return &copied, nil
}

func (m *mockBookingRepo) FindAll(_ context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Booking
	for _, booking := range m.bookings {
		copied := *booking
		out = append(out, &copied)
	}
	return out, int64(len(m.bookings)), nil
}

func (m *mockBookingRepo) FindByCustomer(_ context.Context, customerID string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Booking
	for _, booking := range m.bookings {
		if booking.CustomerID == customerID {
			copied := *booking
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) UpdateStatus(_ context.Context, id string, from, to model.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[id]
	if !ok {
		return bookingerrors.ErrNotFound
	}
	if booking.Status != from {
		return bookingerrors.ErrStatusChanged
	}
	booking.Status = to
	booking.UpdatedAt = time.Now()
	return nil
}

func (m *mockBookingRepo) MaxCommittedUnits(_ context.Context, resourceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perSlot := make(map[string]int)
	for _, booking := range m.bookings {
		if booking.ResourceID != resourceID {
			continue
		}
		if booking.Status == model.StatusUpcoming || booking.Status == model.StatusCheckedIn {
			perSlot[booking.SlotID] += booking.Units
		}
	}
	maxUnits := 0
	for _, units := range perSlot {
		if units > maxUnits {
			maxUnits = units
		}
	}
	return maxUnits, nil
}

type fakeTxManager struct{}

func (fakeTxManager) ExecuteTransaction(ctx context.Context, fn dbmongo.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type capturingPublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (p *capturingPublisher) Publish(_ context.Context, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func testConfig() *config.Config {
	return &config.Config{
		LockTTL:          time.Second,
		CheckInGrace:     15 * time.Minute,
		DefaultSlotUnits: 1,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}
}

type fixture struct {
	service   *bookingService
	repo      *mockBookingRepo
	slots     *availrepo.MemorySlotStore
	locks     *lock.MemoryLockStore
	publisher *capturingPublisher
	slotID    string
	start     time.Time
	end       time.Time
}

func newFixture(t *testing.T, totalUnits int) *fixture {
	t.Helper()

	cfg := testConfig()
	repo := newMockBookingRepo()
	slots := availrepo.NewMemorySlotStore()
	locks := lock.NewMemoryLockStore()
	publisher := &capturingPublisher{}

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	slot := &model.AvailabilitySlot{
		ResourceID:     testResourceID,
		BranchID:       testBranchID,
		StartTime:      start,
		EndTime:        end,
		AvailableUnits: totalUnits,
		TotalUnits:     totalUnits,
	}
	if err := slots.Create(context.Background(), slot); err != nil {
		t.Fatalf("failed to seed slot: %v", err)
	}

	svc := &bookingService{
		bookings:  repo,
		slots:     slots,
		locks:     locks,
		tx:        fakeTxManager{},
		validator: validator.NewBookingValidator(cfg.Log),
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}

	return &fixture{
		service:   svc,
		repo:      repo,
		slots:     slots,
		locks:     locks,
		publisher: publisher,
		slotID:    slot.ID,
		start:     start,
		end:       end,
	}
}

func (f *fixture) newBooking(customerID string) *model.Booking {
	return &model.Booking{
		ResourceID: testResourceID,
		SlotID:     f.slotID,
		CustomerID: customerID,
		Units:      1,
	}
}

func (f *fixture) availableUnits(t *testing.T) int {
	t.Helper()
	slot, err := f.slots.FindByID(context.Background(), f.slotID)
	if err != nil {
		t.Fatalf("failed to read slot: %v", err)
	}
	return slot.AvailableUnits
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if booking.ID == "" {
		t.Error("expected booking ID to be assigned")
	}
	if booking.Status != model.StatusUpcoming {
		t.Errorf("expected status upcoming, got %s", booking.Status)
	}
	if booking.BranchID != testBranchID {
		t.Errorf("expected branch ID from slot, got %s", booking.BranchID)
	}
	if !booking.StartTime.Equal(f.start) || !booking.EndTime.Equal(f.end) {
		t.Error("expected booking times to come from the slot")
	}
	if got := f.availableUnits(t); got != 2 {
		t.Errorf("expected 2 units available after reserve, got %d", got)
	}
	if f.publisher.count() != 1 {
		t.Errorf("expected 1 event published, got %d", f.publisher.count())
	}
}

func TestCreateBookingSlotMismatch(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	booking.ResourceID = strings.Repeat("d", 24)

	err := f.service.Create(context.Background(), booking)
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCreateBookingInsufficientCapacity(t *testing.T) {
	f := newFixture(t, 1)

	first := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	second := f.newBooking("cust-2")
	err := f.service.Create(context.Background(), second)
	if !apperrors.IsCode(err, apperrors.CodeInsufficientCapacity) {
		t.Fatalf("expected INSUFFICIENT_CAPACITY, got %v", err)
	}
	if got := f.availableUnits(t); got != 0 {
		t.Errorf("expected 0 units available, got %d", got)
	}
}

func TestCreateBookingBlockedSlot(t *testing.T) {
	f := newFixture(t, 3)

	if _, err := f.slots.ToggleBlock(context.Background(), f.slotID); err != nil {
		t.Fatalf("failed to block slot: %v", err)
	}

	err := f.service.Create(context.Background(), f.newBooking("cust-1"))
	if !apperrors.IsCode(err, apperrors.CodeSlotBlocked) {
		t.Fatalf("expected SLOT_BLOCKED, got %v", err)
	}
	if got := f.availableUnits(t); got != 3 {
		t.Errorf("expected units untouched on blocked slot, got %d", got)
	}
}

func TestCreateBookingLockContention(t *testing.T) {
	f := newFixture(t, 3)

	key := lock.ResourceKey(testResourceID)
	acquired, err := f.locks.Acquire(context.Background(), key, "other-holder", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("failed to seed lock: acquired=%v err=%v", acquired, err)
	}

	err = f.service.Create(context.Background(), f.newBooking("cust-1"))
	if !apperrors.IsCode(err, apperrors.CodeLockContention) {
		t.Fatalf("expected LOCK_CONTENTION, got %v", err)
	}
	if got := f.availableUnits(t); got != 3 {
		t.Errorf("expected units untouched under contention, got %d", got)
	}
}

func TestConcurrentCreatesSingleWinner(t *testing.T) {
	f := newFixture(t, 1)

	const attempts = 30
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			booking := f.newBooking(fmt.Sprintf("cust-%d", n))
			errs[n] = f.service.Create(context.Background(), booking)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperrors.IsCode(err, apperrors.CodeLockContention):
		case apperrors.IsCode(err, apperrors.CodeInsufficientCapacity):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly 1 successful booking, got %d", successes)
	}
	if got := f.availableUnits(t); got != 0 {
		t.Errorf("expected 0 units available, got %d", got)
	}
}

func TestCheckInWithinWindow(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.service.now = func() time.Time { return f.start.Add(5 * time.Minute) }

	updated, err := f.service.CheckIn(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if updated.Status != model.StatusCheckedIn {
		t.Errorf("expected checked_in, got %s", updated.Status)
	}
	if got := f.availableUnits(t); got != 2 {
		t.Errorf("check-in must not change units, got %d", got)
	}
}

func TestCheckInOutsideWindow(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cases := []struct {
		name string
		now  time.Time
	}{
		{"before window opens", f.start.Add(-time.Hour)},
		{"after window closes", f.start.Add(16 * time.Minute)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.service.now = func() time.Time { return tc.now }

			_, err := f.service.CheckIn(context.Background(), booking.ID)
			if !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
				t.Fatalf("expected INVALID_STATE_TRANSITION, got %v", err)
			}
		})
	}
}

func TestCancelReleasesUnits(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got := f.availableUnits(t); got != 2 {
		t.Fatalf("expected 2 units after create, got %d", got)
	}

	updated, err := f.service.Cancel(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if updated.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", updated.Status)
	}
	if got := f.availableUnits(t); got != 3 {
		t.Errorf("expected units restored to 3, got %d", got)
	}
}

func TestCancelTwiceReleasesOnce(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.service.Cancel(context.Background(), booking.ID); err != nil {
		t.Fatalf("first Cancel failed: %v", err)
	}

	_, err := f.service.Cancel(context.Background(), booking.ID)
	if !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %v", err)
	}
	if got := f.availableUnits(t); got != 3 {
		t.Errorf("expected units released exactly once, got %d available", got)
	}
}

func TestNoShowBeforeGrace(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.service.now = func() time.Time { return f.start.Add(5 * time.Minute) }

	_, err := f.service.NoShow(context.Background(), booking.ID, false)
	if !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
		t.Fatalf("expected INVALID_STATE_TRANSITION before grace elapses, got %v", err)
	}

	// Vendor staff can force the flip without waiting.
	updated, err := f.service.NoShow(context.Background(), booking.ID, true)
	if err != nil {
		t.Fatalf("forced NoShow failed: %v", err)
	}
	if updated.Status != model.StatusNoShow {
		t.Errorf("expected no_show, got %s", updated.Status)
	}
	if got := f.availableUnits(t); got != 3 {
		t.Errorf("expected units released on no-show, got %d", got)
	}
}

func TestNoShowAfterGrace(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.service.now = func() time.Time { return f.start.Add(16 * time.Minute) }

	updated, err := f.service.NoShow(context.Background(), booking.ID, false)
	if err != nil {
		t.Fatalf("NoShow failed: %v", err)
	}
	if updated.Status != model.StatusNoShow {
		t.Errorf("expected no_show, got %s", updated.Status)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.service.now = func() time.Time { return f.start.Add(5 * time.Minute) }

	if _, err := f.service.CheckIn(context.Background(), booking.ID); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	updated, err := f.service.Complete(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if got := f.availableUnits(t); got != 2 {
		t.Errorf("completion must not release units, got %d available", got)
	}
}

func TestCompleteFromUpcomingRejected(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := f.service.Complete(context.Background(), booking.ID)
	if !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %v", err)
	}
}

func TestTransitionEventsPublished(t *testing.T) {
	f := newFixture(t, 3)

	booking := f.newBooking("cust-1")
	if err := f.service.Create(context.Background(), booking); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.service.Cancel(context.Background(), booking.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if f.publisher.count() != 2 {
		t.Fatalf("expected 2 events (created + transitioned), got %d", f.publisher.count())
	}
	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if f.publisher.messages[0].Key != testBranchID {
		t.Errorf("expected events keyed by branch, got %q", f.publisher.messages[0].Key)
	}
	if got := f.publisher.messages[1].GetEventType(); got != kafka.EventBookingTransition {
		t.Errorf("expected %s event, got %s", kafka.EventBookingTransition, got)
	}
}

var _ repository.BookingRepository = (*mockBookingRepo)(nil)
