package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"

	approvalerrors "deskhive/internal/approvals/errors"
	"deskhive/internal/approvals/repository"
	availrepo "deskhive/internal/availability/repository"
	resourceerrors "deskhive/internal/resources/errors"
	resourcerepo "deskhive/internal/resources/repository"
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

type mockApprovalRepo struct {
	mu       sync.Mutex
	nextID   int
	requests map[string]*model.ApprovalRequest
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{requests: make(map[string]*model.ApprovalRequest)}
}

func (m *mockApprovalRepo) Create(_ context.Context, request *model.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	request.ID = fmt.Sprintf("%024x", m.nextID)
	copied := *request
	m.requests[request.ID] = &copied
	return nil
}

func (m *mockApprovalRepo) FindByID(_ context.Context, id string) (*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, ok := m.requests[id]
	if !ok {
		return nil, approvalerrors.ErrNotFound
	}
	copied := *request
	return &copied, nil
}

func (m *mockApprovalRepo) FindByStatus(_ context.Context, status model.ApprovalStatus) ([]*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.ApprovalRequest
	for _, request := range m.requests {
		if request.Status == status {
			copied := *request
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockApprovalRepo) FindByResource(_ context.Context, resourceID string) ([]*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.ApprovalRequest
	for _, request := range m.requests {
		if request.ResourceID == resourceID {
			copied := *request
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockApprovalRepo) Decide(_ context.Context, id string, status model.ApprovalStatus, reviewerID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, ok := m.requests[id]
	if !ok {
		return approvalerrors.ErrNotFound
	}
	if request.Status != model.ApprovalPending {
		return approvalerrors.ErrAlreadyDecided
	}
	decided := time.Now().UTC()
	request.Status = status
	request.ReviewerID = reviewerID
	request.ReviewNotes = notes
	request.DecidedAt = &decided
	return nil
}

type mockResourceRepo struct {
	mu        sync.Mutex
	resources map[string]*model.Resource
}

func newMockResourceRepo() *mockResourceRepo {
	return &mockResourceRepo{resources: make(map[string]*model.Resource)}
}

func (m *mockResourceRepo) Create(_ context.Context, resource *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *resource
	m.resources[resource.ID] = &copied
	return nil
}

func (m *mockResourceRepo) FindByID(_ context.Context, id string) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resource, ok := m.resources[id]
	if !ok {
		return nil, resourceerrors.ErrNotFound
	}
	copied := *resource
	return &copied, nil
}

func (m *mockResourceRepo) FindByBranch(_ context.Context, branchID string) ([]*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Resource
	for _, resource := range m.resources {
		if resource.BranchID == branchID {
			copied := *resource
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockResourceRepo) SetCapacity(_ context.Context, id string, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resource, ok := m.resources[id]
	if !ok {
		return resourceerrors.ErrNotFound
	}
	resource.TotalCapacity = capacity
	return nil
}

// mockBookingCounter satisfies only the committed-units read the approval
// engine performs.
type mockBookingCounter struct {
	committed int
}

func (m *mockBookingCounter) Create(_ context.Context, _ *model.Booking) error { return nil }
func (m *mockBookingCounter) FindByID(_ context.Context, _ string) (*model.Booking, error) {
	return nil, nil
}
func (m *mockBookingCounter) FindAll(_ context.Context, _ int, _ int64) ([]*model.Booking, int64, error) {
	return nil, 0, nil
}
func (m *mockBookingCounter) FindByCustomer(_ context.Context, _ string) ([]*model.Booking, error) {
	return nil, nil
}
func (m *mockBookingCounter) UpdateStatus(_ context.Context, _ string, _, _ model.BookingStatus) error {
	return nil
}
func (m *mockBookingCounter) MaxCommittedUnits(_ context.Context, _ string) (int, error) {
	return m.committed, nil
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

type fixture struct {
	service   *approvalService
	approvals *mockApprovalRepo
	resources *mockResourceRepo
	bookings  *mockBookingCounter
	slots     *availrepo.MemorySlotStore
	locks     *lock.MemoryLockStore
	publisher *capturingPublisher
	slotID    string
}

func newFixture(t *testing.T, capacity, committed int) *fixture {
	t.Helper()

	cfg := &config.Config{
		LockTTL: time.Second,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}

	approvals := newMockApprovalRepo()
	resources := newMockResourceRepo()
	bookings := &mockBookingCounter{committed: committed}
	slots := availrepo.NewMemorySlotStore()
	locks := lock.NewMemoryLockStore()
	publisher := &capturingPublisher{}

	resource := &model.Resource{
		ID:            testResourceID,
		BranchID:      testBranchID,
		Name:          "Main floor hot desks",
		ServiceKind:   "hot_desk",
		TotalCapacity: capacity,
	}
	if err := resources.Create(context.Background(), resource); err != nil {
		t.Fatalf("failed to seed resource: %v", err)
	}

	slot := &model.AvailabilitySlot{
		ResourceID:     testResourceID,
		BranchID:       testBranchID,
		StartTime:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		AvailableUnits: capacity - committed,
		TotalUnits:     capacity,
	}
	if err := slots.Create(context.Background(), slot); err != nil {
		t.Fatalf("failed to seed slot: %v", err)
	}

	svc := &approvalService{
		approvals: approvals,
		resources: resources,
		bookings:  bookings,
		slots:     slots,
		locks:     locks,
		tx:        fakeTxManager{},
		validate:  validator.New(),
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}

	return &fixture{
		service:   svc,
		approvals: approvals,
		resources: resources,
		bookings:  bookings,
		slots:     slots,
		locks:     locks,
		publisher: publisher,
		slotID:    slot.ID,
	}
}

func (f *fixture) newRequest(newValue int) *model.ApprovalRequest {
	return &model.ApprovalRequest{
		ResourceID: testResourceID,
		NewValue:   newValue,
		Reason:     "seasonal demand change",
	}
}

func (f *fixture) pendingRequest(t *testing.T, newValue int) *model.ApprovalRequest {
	t.Helper()
	request := f.newRequest(newValue)
	if err := f.service.Create(context.Background(), request); err != nil {
		t.Fatalf("failed to create approval request: %v", err)
	}
	return request
}

func (f *fixture) resourceCapacity(t *testing.T) int {
	t.Helper()
	resource, err := f.resources.FindByID(context.Background(), testResourceID)
	if err != nil {
		t.Fatalf("failed to read resource: %v", err)
	}
	return resource.TotalCapacity
}

func (f *fixture) slotUnits(t *testing.T) (available, total int) {
	t.Helper()
	slot, err := f.slots.FindByID(context.Background(), f.slotID)
	if err != nil {
		t.Fatalf("failed to read slot: %v", err)
	}
	return slot.AvailableUnits, slot.TotalUnits
}

func TestCreateApprovalRequest(t *testing.T) {
	f := newFixture(t, 4, 0)

	request := f.pendingRequest(t, 6)

	if request.Status != model.ApprovalPending {
		t.Errorf("expected pending, got %s", request.Status)
	}
	if request.OldValue != 4 {
		t.Errorf("expected old value snapshotted as 4, got %d", request.OldValue)
	}
	if request.BranchID != testBranchID {
		t.Errorf("expected branch ID from resource, got %s", request.BranchID)
	}
	if got := f.resourceCapacity(t); got != 4 {
		t.Errorf("creating a request must not touch the resource, capacity is %d", got)
	}
}

func TestCreateApprovalRequestNoChange(t *testing.T) {
	f := newFixture(t, 4, 0)

	err := f.service.Create(context.Background(), f.newRequest(4))
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestApproveIncreasesCapacity(t *testing.T) {
	f := newFixture(t, 4, 3)

	request := f.pendingRequest(t, 6)

	decided, err := f.service.Approve(context.Background(), request.ID, "reviewer-1", "approved for expansion")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if decided.Status != model.ApprovalApproved {
		t.Errorf("expected approved, got %s", decided.Status)
	}
	if decided.DecidedAt == nil {
		t.Error("expected decided_at to be set")
	}
	if got := f.resourceCapacity(t); got != 6 {
		t.Errorf("expected capacity 6, got %d", got)
	}
	available, total := f.slotUnits(t)
	if total != 6 || available != 3 {
		t.Errorf("expected slot rebased to 3/6, got %d/%d", available, total)
	}
}

func TestApproveShrinkAboveCommitted(t *testing.T) {
	f := newFixture(t, 4, 3)

	request := f.pendingRequest(t, 5)
	if _, err := f.service.Approve(context.Background(), request.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if got := f.resourceCapacity(t); got != 5 {
		t.Errorf("expected capacity 5, got %d", got)
	}
}

func TestApproveBelowCommittedConflicts(t *testing.T) {
	f := newFixture(t, 4, 3)

	request := f.pendingRequest(t, 2)

	_, err := f.service.Approve(context.Background(), request.ID, "reviewer-1", "")
	if !apperrors.IsCode(err, apperrors.CodeCapacityConflict) {
		t.Fatalf("expected CAPACITY_CONFLICT, got %v", err)
	}

	if got := f.resourceCapacity(t); got != 4 {
		t.Errorf("conflict must leave capacity unchanged, got %d", got)
	}
	available, total := f.slotUnits(t)
	if total != 4 || available != 1 {
		t.Errorf("conflict must leave slots unchanged, got %d/%d", available, total)
	}

	current, err := f.service.GetByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != model.ApprovalPending {
		t.Errorf("expected request still pending after conflict, got %s", current.Status)
	}
}

func TestDecisionIsTerminal(t *testing.T) {
	f := newFixture(t, 4, 0)

	request := f.pendingRequest(t, 6)
	if _, err := f.service.Approve(context.Background(), request.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if _, err := f.service.Approve(context.Background(), request.ID, "reviewer-2", ""); !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
		t.Errorf("expected INVALID_STATE_TRANSITION on re-approve, got %v", err)
	}
	if _, err := f.service.Reject(context.Background(), request.ID, "reviewer-2", "changed my mind"); !apperrors.IsCode(err, apperrors.CodeInvalidStateTransition) {
		t.Errorf("expected INVALID_STATE_TRANSITION on reject after approve, got %v", err)
	}
	if got := f.resourceCapacity(t); got != 6 {
		t.Errorf("re-decision attempts must not change capacity, got %d", got)
	}
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
	f := newFixture(t, 4, 0)

	request := f.pendingRequest(t, 6)

	const reviewers = 10
	var wg sync.WaitGroup
	results := make(chan error, reviewers)

	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.service.Reject(context.Background(), request.ID, fmt.Sprintf("reviewer-%d", n), "no budget")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case apperrors.IsCode(err, apperrors.CodeInvalidStateTransition):
			lost++
		default:
			t.Errorf("unexpected error racing a decision: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one reviewer to win, got %d", won)
	}
	if lost != reviewers-1 {
		t.Errorf("expected %d losers, got %d", reviewers-1, lost)
	}
}

func TestRejectRequiresNotes(t *testing.T) {
	f := newFixture(t, 4, 0)

	request := f.pendingRequest(t, 6)

	_, err := f.service.Reject(context.Background(), request.ID, "reviewer-1", "  ")
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for empty notes, got %v", err)
	}

	decided, err := f.service.Reject(context.Background(), request.ID, "reviewer-1", "budget freeze")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if decided.Status != model.ApprovalRejected {
		t.Errorf("expected rejected, got %s", decided.Status)
	}
	if got := f.resourceCapacity(t); got != 4 {
		t.Errorf("rejection must not change capacity, got %d", got)
	}
}

func TestApproveLockContention(t *testing.T) {
	f := newFixture(t, 4, 0)

	request := f.pendingRequest(t, 6)

	key := lock.ResourceKey(testResourceID)
	acquired, err := f.locks.Acquire(context.Background(), key, "booking-in-flight", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("failed to seed lock: acquired=%v err=%v", acquired, err)
	}

	_, err = f.service.Approve(context.Background(), request.ID, "reviewer-1", "")
	if !apperrors.IsCode(err, apperrors.CodeLockContention) {
		t.Fatalf("expected LOCK_CONTENTION, got %v", err)
	}
	if got := f.resourceCapacity(t); got != 4 {
		t.Errorf("contended approve must not change capacity, got %d", got)
	}
}

var (
	_ repository.ApprovalRepository   = (*mockApprovalRepo)(nil)
	_ resourcerepo.ResourceRepository = (*mockResourceRepo)(nil)
)
