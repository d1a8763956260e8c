package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Date is a UTC calendar day, stored as midnight UTC.
type Date struct {
	time.Time
}

func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

// Bounds returns the half-open window [start, end) covering the day.
func (d Date) Bounds() (time.Time, time.Time) {
	return d.Time, d.Time.AddDate(0, 0, 1)
}

func (d Date) String() string { return d.Time.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// ServiceMetric is the daily rollup for one service, unique per (ServiceID, Date).
type ServiceMetric struct {
	ID               uuid.UUID `json:"id"`
	ServiceID        uuid.UUID `json:"service_id"`
	Date             Date      `json:"date"`
	UptimePercentage float64   `json:"uptime_percentage"`
	AverageLatencyMS int       `json:"average_latency_ms"`
	TotalChecks      int       `json:"total_checks"`
	SuccessfulChecks int       `json:"successful_checks"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Rollup aggregates the results of one day. Latency averages successful
// results only and is truncated to whole milliseconds.
func Rollup(serviceID uuid.UUID, day Date, results []Result) ServiceMetric {
	m := ServiceMetric{ServiceID: serviceID, Date: day, TotalChecks: len(results)}
	var sumUS int64
	for _, r := range results {
		if r.Success {
			m.SuccessfulChecks++
			sumUS += r.ResponseTimeUS
		}
	}
	m.UptimePercentage = UptimePercentage(m.SuccessfulChecks, m.TotalChecks)
	if m.SuccessfulChecks > 0 {
		m.AverageLatencyMS = int(sumUS / int64(m.SuccessfulChecks) / 1000)
	}
	return m
}

func UptimePercentage(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

type UptimePoint struct {
	Date             string  `json:"date"`
	UptimePercentage float64 `json:"uptime_percentage"`
	LatencyMS        int     `json:"latency_ms"`
}

// Summary is derived from stored metrics and never persisted.
type Summary struct {
	ServiceID        uuid.UUID     `json:"service_id"`
	CurrentUptime    float64       `json:"current_uptime"`
	CurrentLatencyMS int           `json:"current_latency_ms"`
	AverageLatencyMS int           `json:"average_latency_ms"`
	UptimeData       []UptimePoint `json:"uptime_data"`
}

// Summarize reduces daily metrics, newest first. An empty input yields a
// zero-valued summary.
func Summarize(serviceID uuid.UUID, metrics []ServiceMetric) Summary {
	s := Summary{ServiceID: serviceID, UptimeData: []UptimePoint{}}
	if len(metrics) == 0 {
		return s
	}
	sorted := make([]ServiceMetric, len(metrics))
	copy(sorted, metrics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date.Time)
	})

	s.CurrentUptime = sorted[0].UptimePercentage
	s.CurrentLatencyMS = sorted[0].AverageLatencyMS

	total := 0
	for _, m := range sorted {
		total += m.AverageLatencyMS
		s.UptimeData = append(s.UptimeData, UptimePoint{
			Date:             m.Date.String(),
			UptimePercentage: m.UptimePercentage,
			LatencyMS:        m.AverageLatencyMS,
		})
	}
	s.AverageLatencyMS = total / len(sorted)
	return s
}
