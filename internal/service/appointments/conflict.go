package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carebridge/backend/internal/domain"
)

// Buffer is the rest a doctor must have before any appointment starts.
const Buffer = 60 * time.Minute

// OverlapFinder is the calendar read the detector needs.
type OverlapFinder interface {
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// ConflictDetector reports whether a candidate slot collides with a SCHEDULED
// appointment of the same doctor. Every appointment occupies the buffered
// window [start-Buffer, end); two appointments conflict when their buffered
// windows overlap.
type ConflictDetector struct {
	Buffer time.Duration
}

func NewConflictDetector() ConflictDetector {
	return ConflictDetector{Buffer: Buffer}
}

func (d ConflictDetector) HasConflict(ctx context.Context, finder OverlapFinder, doctorID uuid.UUID, candidateStart, candidateEnd time.Time) (bool, error) {
	start := candidateStart.UTC()
	end := candidateEnd.UTC()
	if !end.After(start) {
		return false, domain.NewError(domain.ErrInvalidRequest, "end_time must be after start_time")
	}

	checkStart := start.Add(-d.Buffer)
	// A stored slot blocks the candidate when storedStart-Buffer < end, so the
	// raw-slot query window extends one buffer past the candidate end.
	rows, err := finder.FindOverlapping(ctx, doctorID, checkStart, end.Add(d.Buffer))
	if err != nil {
		return false, err
	}

	for _, a := range rows {
		if a.DoctorID != doctorID || a.Status != domain.AppointmentStatusScheduled {
			continue
		}
		if a.StartTime.Add(-d.Buffer).Before(end) && checkStart.Before(a.EndTime) {
			return true, nil
		}
	}
	return false, nil
}
