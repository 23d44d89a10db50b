package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	availrepo "deskhive/internal/availability/repository"
	"deskhive/pkg/config"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/events"
	"deskhive/pkg/kafka"
	"deskhive/pkg/logger"
	"deskhive/pkg/model"
)

var (
	testBranchID   = strings.Repeat("b", 24)
	testResourceID = strings.Repeat("c", 24)
)

func testConfig() *config.Config {
	return &config.Config{
		ModerateThreshold: 50,
		BusyThreshold:     80,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}
}

func seedSlot(t *testing.T, slots *availrepo.MemorySlotStore, available, total int) string {
	t.Helper()

	slot := &model.AvailabilitySlot{
		ResourceID:     testResourceID,
		BranchID:       testBranchID,
		StartTime:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		AvailableUnits: available,
		TotalUnits:     total,
	}
	if err := slots.Create(context.Background(), slot); err != nil {
		t.Fatalf("failed to seed slot: %v", err)
	}
	return slot.ID
}

func TestOccupancyLabels(t *testing.T) {
	cases := []struct {
		name     string
		reserved int
		label    string
		pct      int
	}{
		{"empty branch is calm", 0, model.OccupancyCalm, 0},
		{"just below moderate", 49, model.OccupancyCalm, 49},
		{"moderate boundary", 50, model.OccupancyModerate, 50},
		{"just below busy", 79, model.OccupancyModerate, 79},
		{"busy boundary", 80, model.OccupancyBusy, 80},
		{"fully reserved", 100, model.OccupancyBusy, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slots := availrepo.NewMemorySlotStore()
			seedSlot(t, slots, 100-tc.reserved, 100)
			svc := NewBranchStateService(slots, testConfig())

			state, err := svc.GetState(context.Background(), testBranchID)
			if err != nil {
				t.Fatalf("GetState failed: %v", err)
			}
			if state.OccupancyPct != tc.pct {
				t.Errorf("expected %d%% occupancy, got %d%%", tc.pct, state.OccupancyPct)
			}
			if state.Label != tc.label {
				t.Errorf("expected label %s, got %s", tc.label, state.Label)
			}
			if state.ReservedUnits != tc.reserved || state.TotalUnits != 100 {
				t.Errorf("expected %d/100 units, got %d/%d", tc.reserved, state.ReservedUnits, state.TotalUnits)
			}
		})
	}
}

func TestStateAggregatesAcrossSlots(t *testing.T) {
	slots := availrepo.NewMemorySlotStore()
	seedSlot(t, slots, 2, 10)
	seedSlot(t, slots, 8, 10)
	svc := NewBranchStateService(slots, testConfig())

	state, err := svc.GetState(context.Background(), testBranchID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.ReservedUnits != 10 || state.TotalUnits != 20 {
		t.Errorf("expected 10/20 units, got %d/%d", state.ReservedUnits, state.TotalUnits)
	}
	if state.OccupancyPct != 50 || state.Label != model.OccupancyModerate {
		t.Errorf("expected 50%% moderate, got %d%% %s", state.OccupancyPct, state.Label)
	}
}

func TestUnknownBranch(t *testing.T) {
	svc := NewBranchStateService(availrepo.NewMemorySlotStore(), testConfig())

	_, err := svc.GetState(context.Background(), testBranchID)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCacheInvalidation(t *testing.T) {
	slots := availrepo.NewMemorySlotStore()
	slotID := seedSlot(t, slots, 10, 10)
	cfg := testConfig()
	svc := NewBranchStateService(slots, cfg)

	state, err := svc.GetState(context.Background(), testBranchID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.ReservedUnits != 0 {
		t.Fatalf("expected 0 reserved, got %d", state.ReservedUnits)
	}

	if err := slots.Reserve(context.Background(), testResourceID, slotID, 6); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// Still served from cache until an event lands.
	state, err = svc.GetState(context.Background(), testBranchID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.ReservedUnits != 0 {
		t.Fatalf("expected cached state, got %d reserved", state.ReservedUnits)
	}

	handler := NewBookingEventHandler(svc, cfg)
	msg := kafka.NewMessage().
		WithKey(testBranchID).
		WithValue(events.BookingEvent{
			BookingID:  "irrelevant",
			BranchID:   testBranchID,
			ResourceID: testResourceID,
			SlotID:     slotID,
			Status:     model.StatusUpcoming.String(),
			Units:      6,
			OccurredAt: time.Now(),
		}).
		WithEventType(kafka.EventBookingCreated).
		Build()
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("event handler failed: %v", err)
	}

	state, err = svc.GetState(context.Background(), testBranchID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.ReservedUnits != 6 || state.Label != model.OccupancyModerate {
		t.Errorf("expected recomputed 6 reserved moderate, got %d %s", state.ReservedUnits, state.Label)
	}
}

func TestUndecodableEventIsDropped(t *testing.T) {
	svc := NewBranchStateService(availrepo.NewMemorySlotStore(), testConfig())
	handler := NewBookingEventHandler(svc, testConfig())

	msg := kafka.Message{Key: testBranchID, Value: []byte("not json")}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("expected undecodable event to be dropped, got %v", err)
	}
}
