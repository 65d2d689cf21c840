package models

import "time"

// DimDate is the calendar dimension. DateKey is derived deterministically
// from the date value (yyyymmdd), so re-materializing a range converges to
// the same keys instead of allocating new ones.
type DimDate struct {
	DateKey    int       `gorm:"column:date_key;primaryKey"`
	DateValue  time.Time `gorm:"column:date_value;not null;uniqueIndex:ux_dim_dates_date_value"`
	Year       int       `gorm:"column:year;not null"`
	Quarter    int       `gorm:"column:quarter;not null"`
	Month      int       `gorm:"column:month;not null"`
	MonthName  string    `gorm:"column:month_name;not null"`
	Day        int       `gorm:"column:day;not null"`
	DayOfWeek  int       `gorm:"column:day_of_week;not null"`
	DayName    string    `gorm:"column:day_name;not null"`
	WeekOfYear int       `gorm:"column:week_of_year;not null"`
	IsWeekend  bool      `gorm:"column:is_weekend;not null"`
	IsHoliday  bool      `gorm:"column:is_holiday;not null;default:false"`
}

// TableName pins the warehouse table name.
func (DimDate) TableName() string {
	return "dim_dates"
}
