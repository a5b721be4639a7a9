package enums

import "time"

// SalesPeriod bounds the orders counted by the admin sales summary.
type SalesPeriod string

const (
	SalesPeriodAll   SalesPeriod = "all"
	SalesPeriodToday SalesPeriod = "today"
	SalesPeriodWeek  SalesPeriod = "week"
	SalesPeriodMonth SalesPeriod = "month"
)

var salesPeriods = valueSet[SalesPeriod]{SalesPeriodAll, SalesPeriodToday, SalesPeriodWeek, SalesPeriodMonth}

func (p SalesPeriod) String() string { return string(p) }

func (p SalesPeriod) IsValid() bool { return salesPeriods.has(p) }

// ParseSalesPeriod accepts one of the known periods. An empty value means all.
func ParseSalesPeriod(value string) (SalesPeriod, error) {
	if value == "" {
		return SalesPeriodAll, nil
	}
	return salesPeriods.parse("sales period", value)
}

// Since returns the lower bound on created_at for the period, in UTC.
// ok is false when the period is unbounded.
func (p SalesPeriod) Since(now time.Time) (since time.Time, ok bool) {
	now = now.UTC()
	switch p {
	case SalesPeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case SalesPeriodWeek:
		return now.AddDate(0, 0, -7), true
	case SalesPeriodMonth:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}
