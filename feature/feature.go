// Package feature defines the analysis feature vocabulary shared by
// the router, subscription manager, and analytics engine. Features are
// an ordered enum: fan-out within a frame always walks FanOutOrder, so
// delivery across sinks is deterministic.
package feature

import "fmt"

// Feature identifies one analysis product.
type Feature int

// The feature set, in deterministic fan-out order.
const (
	Tabular Feature = iota
	TimeView
	TimeReport
	MultiTrend
	Trend
	Centerline
	FFT
	Orbit
	Bode
	History
	Polar
	Report
)

// FanOutOrder is the order the router visits features when fanning a
// frame out to subscriptions.
var FanOutOrder = []Feature{
	Tabular, TimeView, TimeReport, MultiTrend,
	Trend, Centerline, FFT, Orbit,
	Bode, History, Polar, Report,
}

var names = map[Feature]string{
	Tabular:    "tabular",
	TimeView:   "time_view",
	TimeReport: "time_report",
	MultiTrend: "multi_trend",
	Trend:      "trend",
	Centerline: "centerline",
	FFT:        "fft",
	Orbit:      "orbit",
	Bode:       "bode",
	History:    "history",
	Polar:      "polar",
	Report:     "report",
}

// String returns the wire name, used in derived-product subjects and
// metric labels.
func (f Feature) String() string {
	if name, ok := names[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// Parse resolves a wire name back to a Feature.
func Parse(name string) (Feature, error) {
	for f, n := range names {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// allChannel features consume the full frame; the rest receive a
// per-channel slice.
var allChannel = map[Feature]bool{
	Tabular:    true,
	TimeView:   true,
	TimeReport: true,
	MultiTrend: true,
}

// AllChannels reports whether the feature consumes every channel of a
// frame rather than a single-channel slice.
func (f Feature) AllChannels() bool {
	return allChannel[f]
}

// DerivedSubject returns the bus subject a feature's results are
// published on. channel is ignored for all-channel features.
func DerivedSubject(f Feature, model string, channel int) string {
	if f.AllChannels() {
		return fmt.Sprintf("derived.%s.%s.all", f, model)
	}
	return fmt.Sprintf("derived.%s.%s.%d", f, model, channel)
}
