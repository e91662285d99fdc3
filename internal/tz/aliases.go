package tz

// zoneAliases maps colloquial zone names, abbreviations, and common US
// city/state names to canonical IANA ids. Keys are lowercase.
var zoneAliases = map[string]string{
	// Region names and abbreviations.
	"eastern":  "America/New_York",
	"est":      "America/New_York",
	"edt":      "America/New_York",
	"et":       "America/New_York",
	"central":  "America/Chicago",
	"cst":      "America/Chicago",
	"cdt":      "America/Chicago",
	"ct":       "America/Chicago",
	"mountain": "America/Denver",
	"mst":      "America/Denver",
	"mdt":      "America/Denver",
	"mt":       "America/Denver",
	"pacific":  "America/Los_Angeles",
	"pst":      "America/Los_Angeles",
	"pdt":      "America/Los_Angeles",
	"pt":       "America/Los_Angeles",
	"utc":      "UTC",
	"gmt":      "UTC",

	// Zones that do not observe DST get their own ids, not a region alias.
	"arizona": "America/Phoenix",
	"phoenix": "America/Phoenix",
	"hawaii":  "Pacific/Honolulu",
	"alaska":  "America/Anchorage",

	// Cities people type instead of zones.
	"new york":      "America/New_York",
	"nyc":           "America/New_York",
	"boston":        "America/New_York",
	"atlanta":       "America/New_York",
	"miami":         "America/New_York",
	"philadelphia":  "America/New_York",
	"washington":    "America/New_York",
	"chicago":       "America/Chicago",
	"dallas":        "America/Chicago",
	"houston":       "America/Chicago",
	"austin":        "America/Chicago",
	"minneapolis":   "America/Chicago",
	"denver":        "America/Denver",
	"salt lake":     "America/Denver",
	"albuquerque":   "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"la":            "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"portland":      "America/Los_Angeles",
	"san diego":     "America/Los_Angeles",
	"las vegas":     "America/Los_Angeles",

	// A few non-US conveniences.
	"london": "Europe/London",
	"paris":  "Europe/Paris",
	"berlin": "Europe/Berlin",
	"tokyo":  "Asia/Tokyo",
	"sydney": "Australia/Sydney",
}
