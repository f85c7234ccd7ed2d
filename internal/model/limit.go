package model

import (
	"sort"
	"strings"
	"time"
)

// LimitStatus classifies a stock's closing state relative to its daily price limit.
type LimitStatus string

const (
	// LimitStatusUp marks a stock that closed at the limit-up price.
	LimitStatusUp LimitStatus = "U"
	// LimitStatusFailed marks a stock that touched limit-up intraday but
	// failed to hold it into the close ("炸板").
	LimitStatusFailed LimitStatus = "Z"
	// LimitStatusDown marks a stock that closed at the limit-down price.
	LimitStatusDown LimitStatus = "D"
)

// LimitEvent is one stock's limit record for one trading day, as produced by
// the upstream market snapshot. The attribution engine treats it as read-only.
type LimitEvent struct {
	TradeDate  string      `json:"trade_date"` // YYYYMMDD
	StockCode  string      `json:"stock_code"`
	StockName  string      `json:"stock_name"`
	Status     LimitStatus `json:"status"`
	FirstTime  string      `json:"first_time"` // HHMMSS of first limit touch
	LastTime   string      `json:"last_time"`  // HHMMSS of last limit touch
	OpenTimes  int         `json:"open_times"`
	Continuous int         `json:"continuous"` // consecutive limit-up day count
	Reason     string      `json:"reason"`     // vendor free-text reason, may be empty
}

// DaySnapshot groups one trading day's limit events by status. LimitUpCodes
// preserves first-limit-time order so pipeline passes iterate deterministically.
type DaySnapshot struct {
	TradeDate    string
	LimitUp      map[string]*LimitEvent
	Failed       map[string]*LimitEvent
	Down         map[string]*LimitEvent
	Names        map[string]string // stock code → display name
	LimitUpCodes []string          // limit-up codes ordered by first limit time
}

// NewDaySnapshot indexes a day's limit events by status.
func NewDaySnapshot(tradeDate string, events []LimitEvent) *DaySnapshot {
	snap := &DaySnapshot{
		TradeDate: tradeDate,
		LimitUp:   make(map[string]*LimitEvent),
		Failed:    make(map[string]*LimitEvent),
		Down:      make(map[string]*LimitEvent),
		Names:     make(map[string]string),
	}
	for i := range events {
		ev := &events[i]
		snap.Names[ev.StockCode] = ev.StockName
		switch ev.Status {
		case LimitStatusUp:
			snap.LimitUp[ev.StockCode] = ev
			snap.LimitUpCodes = append(snap.LimitUpCodes, ev.StockCode)
		case LimitStatusFailed:
			snap.Failed[ev.StockCode] = ev
		case LimitStatusDown:
			snap.Down[ev.StockCode] = ev
		}
	}
	sort.SliceStable(snap.LimitUpCodes, func(i, j int) bool {
		a, b := snap.LimitUp[snap.LimitUpCodes[i]], snap.LimitUp[snap.LimitUpCodes[j]]
		if a.FirstTime != b.FirstTime {
			return a.FirstTime < b.FirstTime
		}
		return a.StockCode < b.StockCode
	})
	return snap
}

// reasonSeparators lists the separator characters vendors use to join
// multiple causes into one reason string, in match-priority order.
var reasonSeparators = []string{"+", "＋", " "}

// SplitReason breaks a compound reason into its cause segments. The first
// separator that actually splits the string wins; a reason with no separator
// is its own single segment.
func SplitReason(reason string) []string {
	for _, sep := range reasonSeparators {
		parts := strings.Split(reason, sep)
		if len(parts) > 1 {
			return parts
		}
	}
	return []string{reason}
}

// WithinSeconds reports whether two HHMMSS timestamps are less than max
// seconds apart. Either side being empty means no correlation can be shown.
func WithinSeconds(a, b string, max int) bool {
	ta, okA := parseHHMMSS(a)
	tb, okB := parseHHMMSS(b)
	if !okA || !okB {
		return false
	}
	diff := ta.Sub(tb)
	if diff < 0 {
		diff = -diff
	}
	return diff < time.Duration(max)*time.Second
}

func parseHHMMSS(s string) (time.Time, bool) {
	if len(s) == 5 {
		s = "0" + s
	}
	t, err := time.Parse("150405", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
