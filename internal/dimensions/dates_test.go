package dimensions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlift/starlift/pkg/db/models"
)

func TestDateKeyFor(t *testing.T) {
	assert.Equal(t, 20230101, DateKeyFor(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 20241231, DateKeyFor(time.Date(2024, 12, 31, 15, 4, 5, 0, time.UTC)))
}

func TestEnsureRangeMaterializesCalendar(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	builder := NewDateBuilder(conn)

	inserted, err := builder.EnsureRange(ctx,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 31, inserted)

	var row models.DimDate
	require.NoError(t, conn.Where("date_key = ?", 20230101).First(&row).Error)
	assert.Equal(t, 2023, row.Year)
	assert.Equal(t, 1, row.Quarter)
	assert.Equal(t, "January", row.MonthName)
	assert.Equal(t, 7, row.DayOfWeek) // Sunday
	assert.Equal(t, "Sunday", row.DayName)
	assert.True(t, row.IsWeekend)

	row = models.DimDate{}
	require.NoError(t, conn.Where("date_key = ?", 20230102).First(&row).Error)
	assert.Equal(t, 1, row.DayOfWeek) // Monday
	assert.False(t, row.IsWeekend)
	assert.Equal(t, 1, row.WeekOfYear)
}

func TestEnsureRangeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	builder := NewDateBuilder(conn)
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)

	inserted, err := builder.EnsureRange(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 10, inserted)

	inserted, err = builder.EnsureRange(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	var count int64
	require.NoError(t, conn.Model(&models.DimDate{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)
}

func TestEnsureRangeRejectsInvertedRange(t *testing.T) {
	ctx := context.Background()
	builder := NewDateBuilder(newTestDB(t))

	_, err := builder.EnsureRange(ctx,
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestEnsureRangeMarksHolidays(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	newYear := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	builder := NewDateBuilder(conn).WithHolidays(newYear)

	_, err := builder.EnsureRange(ctx, newYear, newYear.AddDate(0, 0, 2))
	require.NoError(t, err)

	var row models.DimDate
	require.NoError(t, conn.Where("date_key = ?", 20230101).First(&row).Error)
	assert.True(t, row.IsHoliday)
	row = models.DimDate{}
	require.NoError(t, conn.Where("date_key = ?", 20230102).First(&row).Error)
	assert.False(t, row.IsHoliday)
}

func TestExistingKeys(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	builder := NewDateBuilder(conn)

	_, err := builder.EnsureRange(ctx,
		time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	present, err := builder.ExistingKeys(ctx, []int{20230501, 20230503, 20991231})
	require.NoError(t, err)
	assert.True(t, present[20230501])
	assert.True(t, present[20230503])
	assert.False(t, present[20991231])
}
