package domain

import "time"

// DefaultDailyLimit is the number of searches a new user gets per day.
const DefaultDailyLimit = 20

// UserQuota is a user's daily search allowance. LastSearchDate is a civil
// date stored as midnight UTC.
type UserQuota struct {
	UserID         string    `json:"user_id"`
	DailyLimit     int       `json:"daily_search_limit"`
	Remaining      int       `json:"daily_search_remaining"`
	LastSearchDate time.Time `json:"last_search_date"`
}

// QuotaDecision is the result of a check-and-consume.
type QuotaDecision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// Day returns the civil date of t in its own location as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Rollover resets Remaining to DailyLimit when the last search was not today.
func (q UserQuota) Rollover(today time.Time) UserQuota {
	today = Day(today)
	if !Day(q.LastSearchDate).Equal(today) {
		q.Remaining = q.DailyLimit
		q.LastSearchDate = today
	}
	return q
}

// Consume rolls the quota over and then takes one search if any remain.
// The returned quota is what must be persisted.
func (q UserQuota) Consume(today time.Time) (UserQuota, QuotaDecision) {
	q = q.Rollover(today)

	if q.Remaining <= 0 {
		q.Remaining = 0
		return q, QuotaDecision{Allowed: false, Remaining: 0, Limit: q.DailyLimit}
	}

	q.Remaining--
	return q, QuotaDecision{Allowed: true, Remaining: q.Remaining, Limit: q.DailyLimit}
}

// SearchLogEntry is one user's search count for one day.
type SearchLogEntry struct {
	UserID string    `json:"user_id"`
	Date   time.Time `json:"date"`
	Count  int       `json:"count"`
}

// DailyStat aggregates searches over all users for one day.
type DailyStat struct {
	Date     time.Time `json:"date"`
	Searches int       `json:"searches"`
	Users    int       `json:"users"`
}

// FillDays returns one stat per day from today-days+1 to today, using zero
// for days absent from stats.
func FillDays(stats []DailyStat, today time.Time, days int) []DailyStat {
	byDay := make(map[time.Time]DailyStat, len(stats))
	for _, s := range stats {
		byDay[Day(s.Date)] = s
	}

	today = Day(today)
	out := make([]DailyStat, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		s, ok := byDay[d]
		if !ok {
			s = DailyStat{}
		}
		s.Date = d
		out = append(out, s)
	}
	return out
}
