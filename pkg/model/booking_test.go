package model

import "testing"

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	statuses := []BookingStatus{
		StatusUpcoming, StatusCheckedIn, StatusCompleted, StatusNoShow, StatusCancelled,
	}

	allowed := map[BookingStatus]map[BookingStatus]bool{
		StatusUpcoming: {
			StatusCheckedIn: true,
			StatusNoShow:    true,
			StatusCancelled: true,
		},
		StatusCheckedIn: {
			StatusCompleted: true,
		},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	terminal := map[BookingStatus]bool{
		StatusUpcoming:  false,
		StatusCheckedIn: false,
		StatusCompleted: true,
		StatusNoShow:    true,
		StatusCancelled: true,
	}

	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestBookingStatus_ReleasesUnits(t *testing.T) {
	// Cancel and no-show reclaim the slot; completion does not, since the
	// slot's time window has already passed.
	releases := map[BookingStatus]bool{
		StatusUpcoming:  false,
		StatusCheckedIn: false,
		StatusCompleted: false,
		StatusNoShow:    true,
		StatusCancelled: true,
	}

	for status, want := range releases {
		if got := status.ReleasesUnits(); got != want {
			t.Errorf("ReleasesUnits(%s) = %v, want %v", status, got, want)
		}
	}
}
