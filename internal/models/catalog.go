package models

import "strings"

// Time dimensions understood by the pipeline. A request carries at most one.
const (
	DimensionDate     = "date"
	DimensionYearWeek = "isoYearIsoWeek"
	DimensionMonth    = "yearMonth"
)

// Prefixes of property-scoped custom definitions, accepted without catalog lookup.
var customPrefixes = []string{"customEvent:", "customUser:", "customItem:"}

// knownMetrics lists the Data API metrics the dashboard requests.
var knownMetrics = map[string]bool{
	"activeUsers":            true,
	"totalUsers":             true,
	"newUsers":               true,
	"sessions":               true,
	"engagedSessions":        true,
	"averageSessionDuration": true,
	"bounceRate":             true,
	"engagementRate":         true,
	"screenPageViews":        true,
	"eventCount":             true,
	"conversions":            true,
	"totalRevenue":           true,
	"purchaseRevenue":        true,
	"adRevenue":              true,
	"totalAdRevenue":         true,
	"transactions":           true,
	"userEngagementDuration": true,
}

// timeDimensions maps each supported time dimension to its bucket resolution.
var timeDimensions = map[string]Granularity{
	DimensionDate:     Daily,
	DimensionYearWeek: Weekly,
	DimensionMonth:    Monthly,
}

// IsKnownMetric reports whether name is a catalog or custom metric.
func IsKnownMetric(name string) bool {
	return knownMetrics[name] || isCustom(name)
}

// IsTimeDimension reports whether name buckets rows by time.
func IsTimeDimension(name string) bool {
	_, ok := timeDimensions[name]
	return ok
}

// TimeDimensionFor returns the time dimension that produces rows at granularity g.
func TimeDimensionFor(g Granularity) string {
	switch g {
	case Weekly:
		return DimensionYearWeek
	case Monthly:
		return DimensionMonth
	default:
		return DimensionDate
	}
}

// ResolutionOf returns the granularity rows of a time dimension are bucketed at.
func ResolutionOf(dimension string) (Granularity, bool) {
	g, ok := timeDimensions[dimension]
	return g, ok
}

func isCustom(name string) bool {
	for _, p := range customPrefixes {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return validIdentifier(name[len(p):])
		}
	}
	return false
}

// validIdentifier accepts API names made of letters, digits and underscores.
// The only ':' a name may carry is its custom prefix, so cache keys stay unambiguous.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
