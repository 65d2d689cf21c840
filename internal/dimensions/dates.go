package dimensions

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/starlift/starlift/pkg/db/models"
	apperrors "github.com/starlift/starlift/pkg/errors"
)

const dateInsertBatchSize = 200

// DateKeyFor derives the deterministic yyyymmdd key for a calendar date.
// The same date always maps to the same key, so re-materializing a range
// converges instead of allocating fresh surrogates.
func DateKeyFor(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DateBuilder materializes the calendar dimension over a date range.
type DateBuilder struct {
	conn     *gorm.DB
	holidays map[int]bool
}

// NewDateBuilder builds a date builder over the shared GORM connection.
func NewDateBuilder(conn *gorm.DB) *DateBuilder {
	return &DateBuilder{conn: conn, holidays: make(map[int]bool)}
}

// WithHolidays marks the given dates as holidays when materialized.
func (b *DateBuilder) WithHolidays(dates ...time.Time) *DateBuilder {
	for _, date := range dates {
		b.holidays[DateKeyFor(date)] = true
	}
	return b
}

// EnsureRange materializes one row per day in [start, end], skipping days
// that already exist. Returns the number of rows inserted.
func (b *DateBuilder) EnsureRange(ctx context.Context, start, end time.Time) (int, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return 0, apperrors.New(apperrors.CodeConfiguration, "date range end precedes start")
	}

	var rows []models.DimDate
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		rows = append(rows, b.buildDay(day))
	}

	inserted := 0
	for offset := 0; offset < len(rows); offset += dateInsertBatchSize {
		limit := offset + dateInsertBatchSize
		if limit > len(rows) {
			limit = len(rows)
		}
		chunk := rows[offset:limit]
		result := b.conn.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&chunk)
		if result.Error != nil {
			return inserted, storageError(result.Error, "materializing date dimension")
		}
		inserted += int(result.RowsAffected)
	}
	return inserted, nil
}

// ExistingKeys reports which of the given date keys are present in the
// calendar dimension.
func (b *DateBuilder) ExistingKeys(ctx context.Context, keys []int) (map[int]bool, error) {
	if len(keys) == 0 {
		return map[int]bool{}, nil
	}
	var found []int
	err := b.conn.WithContext(ctx).
		Model(&models.DimDate{}).
		Where("date_key IN ?", keys).
		Pluck("date_key", &found).Error
	if err != nil {
		return nil, storageError(err, "checking date dimension coverage")
	}
	present := make(map[int]bool, len(found))
	for _, key := range found {
		present[key] = true
	}
	return present, nil
}

func (b *DateBuilder) buildDay(day time.Time) models.DimDate {
	key := DateKeyFor(day)
	_, week := day.ISOWeek()
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return models.DimDate{
		DateKey:    key,
		DateValue:  day,
		Year:       day.Year(),
		Quarter:    (int(day.Month())-1)/3 + 1,
		Month:      int(day.Month()),
		MonthName:  day.Month().String(),
		Day:        day.Day(),
		DayOfWeek:  weekday,
		DayName:    day.Weekday().String(),
		WeekOfYear: week,
		IsWeekend:  weekday >= 6,
		IsHoliday:  b.holidays[key],
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
