// Package snapshot records the daily rank history ledger.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/batch"
	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultPageSize bounds how many teams are read and written at a time
const DefaultPageSize = 2000

// ErrPastDate is returned for a snapshot date before the current UTC day.
// Earlier days of the ledger are immutable.
var ErrPastDate = errors.New("snapshot date is in the past")

// CheckDate rejects asOf when its UTC calendar day is before now's
func CheckDate(asOf, now time.Time) error {
	day, today := models.DateOnly(asOf), models.DateOnly(now)
	if day.Before(today) {
		return fmt.Errorf("%w: %s is before %s", ErrPastDate,
			day.Format(time.DateOnly), today.Format(time.DateOnly))
	}
	return nil
}

// TeamSource pages through the full team population in ascending ID order.
// afterID is empty for the first page.
type TeamSource interface {
	ListTeamsPage(ctx context.Context, afterID string, limit int) ([]models.TeamWithRanks, error)
}

// Writer upserts snapshot rows keyed on (team, date)
type Writer interface {
	UpsertSnapshots(ctx context.Context, rows []models.RatingSnapshot) error
}

// Result describes one capture run
type Result struct {
	Date    time.Time    `json:"date"`
	Scanned int          `json:"scanned"`
	Report  batch.Report `json:"report"`
}

// Recorder captures point-in-time copies of every team's rating and ranks
type Recorder struct {
	source   TeamSource
	writer   Writer
	pageSize int
}

// NewRecorder creates a recorder reading from source and writing to writer
func NewRecorder(source TeamSource, writer Writer, pageSize int) *Recorder {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Recorder{
		source:   source,
		writer:   writer,
		pageSize: pageSize,
	}
}

// Capture writes a snapshot dated asOf for every team that has an external
// rank or has played at least one match, and returns how many were written.
//
// Re-running on the same day overwrites that day's rows. A failed page write
// is logged and later pages are still attempted; the returned error then
// lists the failed pages. A failed page read ends the capture because the
// next page cannot be located.
func (r *Recorder) Capture(ctx context.Context, asOf time.Time) (*Result, error) {
	result := &Result{Date: models.DateOnly(asOf)}
	afterID := ""

	for {
		teams, err := r.source.ListTeamsPage(ctx, afterID, r.pageSize)
		if err != nil {
			return result, fmt.Errorf("failed to read teams after %q: %w", afterID, err)
		}
		if len(teams) == 0 {
			break
		}
		result.Scanned += len(teams)
		afterID = teams[len(teams)-1].TeamID

		rows := make([]models.RatingSnapshot, 0, len(teams))
		for i := range teams {
			if teams[i].Snapshottable() {
				rows = append(rows, models.SnapshotFrom(&teams[i], result.Date))
			}
		}

		if len(rows) > 0 {
			err := r.writer.UpsertSnapshots(ctx, rows)
			result.Report.Add(len(rows), err)
			if err != nil {
				log.Error().
					Err(err).
					Str("after_id", afterID).
					Int("rows", len(rows)).
					Msg("Failed to write snapshot page, continuing with next page")
			}
		}

		if len(teams) < r.pageSize {
			break
		}
	}

	log.Info().
		Str("date", result.Date.Format(time.DateOnly)).
		Int("scanned", result.Scanned).
		Int("written", result.Report.Written).
		Int("failed_pages", result.Report.FailedPages).
		Msg("Rank snapshot captured")

	if err := result.Report.Err(); err != nil {
		return result, fmt.Errorf("snapshot capture incomplete: %w", err)
	}
	return result, nil
}
