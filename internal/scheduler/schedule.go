package scheduler

import (
	"time"

	"pricewatch/internal/jobs"
	"pricewatch/internal/types"
)

// Default PlayStation Store crawl shape.
const (
	DefaultPSStorePages    = 3
	DefaultPSStorePageSize = 100
)

// DefaultRegions are the PlayStation Store regions crawled when none are
// configured.
var DefaultRegions = []string{"en-us", "en-gb", "de-de", "ja-jp"}

// ScheduledJob is one recurring enqueue. Discriminators feed jobs.DedupeKey;
// a Daily job also gets the UTC date appended so each day produces a new row
// instead of refreshing yesterday's.
type ScheduledJob struct {
	Kind           string
	Discriminators []string
	Payload        types.JobPayload
	Daily          bool
}

// DedupeKey returns the job's key at now.
func (j ScheduledJob) DedupeKey(now time.Time) string {
	d := j.Discriminators
	if j.Daily {
		d = append(append([]string{}, d...), now.UTC().Format("2006-01-02"))
	}
	return jobs.DedupeKey(j.Kind, d...)
}

// Schedule is the ordered list of recurring jobs.
type Schedule []ScheduledJob

// DefaultSchedule crawls each region, refreshes every catalog and fetches
// the day's exchange rates.
func DefaultSchedule(regions []string) Schedule {
	if len(regions) == 0 {
		regions = DefaultRegions
	}

	s := make(Schedule, 0, len(regions)+5)
	for _, region := range regions {
		s = append(s, ScheduledJob{
			Kind:           types.KindPSStoreRegion,
			Discriminators: []string{region, itoa(DefaultPSStorePages), itoa(DefaultPSStorePageSize)},
			Payload: types.JobPayload{
				"region":    region,
				"pages":     DefaultPSStorePages,
				"page_size": DefaultPSStorePageSize,
			},
		})
	}
	for _, kind := range []string{types.KindSteamCatalog, types.KindXboxCatalog, types.KindNexardaPrices, types.KindGiantBombGames} {
		s = append(s, ScheduledJob{Kind: kind, Discriminators: []string{"all"}})
	}
	s = append(s, ScheduledJob{Kind: types.KindExchangeRates, Daily: true})
	return s
}
