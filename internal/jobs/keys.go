package jobs

import (
	"strconv"
	"strings"

	"pricewatch/internal/types"
)

// DedupeKey joins kind and the request's distinguishing parameters as
// "<kind>:<d1>:<d2>...". Discriminators are used in the order given, trimmed
// and lower-cased, so the same logical request always yields the same key.
func DedupeKey(kind string, discriminators ...string) string {
	parts := make([]string, 0, len(discriminators)+1)
	parts = append(parts, strings.TrimSpace(kind))
	for _, d := range discriminators {
		parts = append(parts, strings.ToLower(strings.TrimSpace(d)))
	}
	return strings.Join(parts, ":")
}

// RegionPageKey is the canonical key for a PlayStation Store region crawl.
func RegionPageKey(region string, pages, pageSize int) string {
	return DedupeKey(types.KindPSStoreRegion, region, strconv.Itoa(pages), strconv.Itoa(pageSize))
}
