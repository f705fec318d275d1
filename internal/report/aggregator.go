// Package report computes read-only rollups over the attendance ledger.
// Nothing here writes, so there are no concurrency hazards; reports are
// built lazily per request.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/repo/postgres"
)

type Totals struct {
	Reservations       int `json:"reservations"`
	ExpectedAttendance int `json:"expected_attendance"`
	ActualAttendance   int `json:"actual_attendance"`
	Cancelled          int `json:"cancelled"`
	// NoShows is a read-time classification: reserved time passed with
	// zero attendance. It is never stored on the reservation.
	NoShows          int `json:"no_shows"`
	Overbooked       int `json:"overbooked"`
	WalkInRecords    int `json:"walk_in_records"`
	WalkInPeople     int `json:"walk_in_people"`
	GuestPassesTotal int `json:"guest_passes_total"`
	GuestPassesUsed  int `json:"guest_passes_used"`
}

type PromoterStats struct {
	PromoterID   string `json:"promoter_id"`
	Name         string `json:"name"`
	Reservations int    `json:"reservations"`
	Expected     int    `json:"expected"`
	Attended     int    `json:"attended"`
	NoShows      int    `json:"no_shows"`
	// Compliance is attended/expected, the share of promised guests who
	// actually showed up.
	Compliance float64 `json:"compliance"`
}

type RankEntry struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	People int    `json:"people"`
}

type Report struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Totals       Totals          `json:"totals"`
	Promoters    []PromoterStats `json:"promoters"`
	TopDays      []RankEntry     `json:"top_days"`
	TopHours     []RankEntry     `json:"top_hours"`
	TopPromoters []RankEntry     `json:"top_promoters"`
	TopCustomers []RankEntry     `json:"top_customers"`
}

const topN = 5

type Aggregator struct {
	reservations postgres.ReservationRepo
	walkIns      postgres.WalkInRepo
	passes       postgres.GuestPassRepo
	promoters    postgres.PromoterRepo

	now func() time.Time
}

func NewAggregator(
	reservations postgres.ReservationRepo,
	walkIns postgres.WalkInRepo,
	passes postgres.GuestPassRepo,
	promoters postgres.PromoterRepo,
) *Aggregator {
	return &Aggregator{
		reservations: reservations,
		walkIns:      walkIns,
		passes:       passes,
		promoters:    promoters,
		now:          time.Now,
	}
}

// Compute builds a point-in-time report for [from, to).
func (a *Aggregator) Compute(ctx context.Context, tenantID string, from, to time.Time) (*Report, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report range end must be after start")
	}

	var (
		reservations []domain.Reservation
		walkIns      []domain.WalkInRecord
		passes       []domain.EventGuestPass
		promoterList []domain.Promoter
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		reservations, err = a.reservations.ListByDateRange(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() (err error) {
		walkIns, err = a.walkIns.ListByDateRange(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() (err error) {
		passes, err = a.passes.ListByDateRange(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() (err error) {
		promoterList, err = a.promoters.List(gctx, tenantID, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load report data: %w", err)
	}

	rep := &Report{From: from, To: to}
	a.computeTotals(rep, reservations, walkIns, passes)
	rep.Promoters = a.computePromoters(reservations, promoterList)
	a.computeRankings(rep, reservations)
	return rep, nil
}

func (a *Aggregator) computeTotals(rep *Report, reservations []domain.Reservation, walkIns []domain.WalkInRecord, passes []domain.EventGuestPass) {
	now := a.now()
	for i := range reservations {
		r := &reservations[i]
		rep.Totals.Reservations++
		if r.Status == domain.ReservationCancelled {
			rep.Totals.Cancelled++
			continue
		}
		rep.Totals.ExpectedAttendance += r.Capacity
		rep.Totals.ActualAttendance += r.AttendanceCount
		if r.IsNoShow(now) {
			rep.Totals.NoShows++
		}
		if r.Status == domain.ReservationOverbooked {
			rep.Totals.Overbooked++
		}
	}

	for _, w := range walkIns {
		rep.Totals.WalkInRecords++
		rep.Totals.WalkInPeople += w.PersonCount
	}

	for _, p := range passes {
		rep.Totals.GuestPassesTotal++
		if p.Redeemed {
			rep.Totals.GuestPassesUsed++
		}
	}
}

func (a *Aggregator) computePromoters(reservations []domain.Reservation, promoterList []domain.Promoter) []PromoterStats {
	names := make(map[string]string, len(promoterList))
	for _, p := range promoterList {
		names[p.ID] = p.Name
	}

	now := a.now()
	byID := make(map[string]*PromoterStats)
	for i := range reservations {
		r := &reservations[i]
		if r.PromoterID == nil || r.Status == domain.ReservationCancelled {
			continue
		}
		id := *r.PromoterID
		st, ok := byID[id]
		if !ok {
			name := names[id]
			if name == "" {
				name = "unassigned"
			}
			st = &PromoterStats{PromoterID: id, Name: name}
			byID[id] = st
		}
		st.Reservations++
		st.Expected += r.Capacity
		st.Attended += r.AttendanceCount
		if r.IsNoShow(now) {
			st.NoShows++
		}
	}

	stats := make([]PromoterStats, 0, len(byID))
	for _, st := range byID {
		if st.Expected > 0 {
			st.Compliance = float64(st.Attended) / float64(st.Expected)
		}
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Reservations > stats[j].Reservations })
	return stats
}

func (a *Aggregator) computeRankings(rep *Report, reservations []domain.Reservation) {
	days := map[string]*RankEntry{}
	hours := map[string]*RankEntry{}
	promoters := map[string]*RankEntry{}
	customers := map[string]*RankEntry{}

	for i := range reservations {
		r := &reservations[i]
		if r.Status == domain.ReservationCancelled {
			continue
		}
		bump(days, r.ReservedAt.Format("2006-01-02"), r.AttendanceCount)
		bump(hours, r.ReservedAt.Format("15:00"), r.AttendanceCount)
		if r.PromoterID != nil {
			bump(promoters, *r.PromoterID, r.AttendanceCount)
		}
		bump(customers, r.CustomerName, r.AttendanceCount)
	}

	rep.TopDays = top(days)
	rep.TopHours = top(hours)
	rep.TopPromoters = top(promoters)
	rep.TopCustomers = top(customers)
}

func bump(m map[string]*RankEntry, key string, people int) {
	e, ok := m[key]
	if !ok {
		e = &RankEntry{Key: key}
		m[key] = e
	}
	e.Count++
	e.People += people
}

func top(m map[string]*RankEntry) []RankEntry {
	entries := make([]RankEntry, 0, len(m))
	for _, e := range m {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}
