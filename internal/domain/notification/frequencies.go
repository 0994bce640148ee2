package notification

import "time"

// Frequency is a named delivery cadence. Frequencies marked Realtime are
// eligible for immediate delivery; all others queue notifications for
// digest pickup.
type Frequency struct {
	Key         string
	Name        string
	Description string
	Realtime    bool
}

// DueAt reports whether a digest run triggered at now should cover this
// frequency. Realtime frequencies are never digest-due. Weekly digests
// go out on Mondays; every other non-realtime frequency is due on each
// scheduled run.
func (f Frequency) DueAt(now time.Time) bool {
	if f.Realtime {
		return false
	}
	if f.Key == "weekly" {
		return now.Weekday() == time.Monday
	}
	return true
}

// FallbackFrequencyKey is used when no realtime frequency is registered
// at all, so immediate-delivery channels never silently misbehave on a
// misconfigured registry.
const FallbackFrequencyKey = "realtime"

// Built-in frequencies. Applications register the ones they want.
var (
	RealtimeFrequency = Frequency{
		Key:         "realtime",
		Name:        "Realtime",
		Description: "Send immediately",
		Realtime:    true,
	}
	DailyFrequency = Frequency{
		Key:         "daily",
		Name:        "Daily",
		Description: "One digest per day",
	}
	WeeklyFrequency = Frequency{
		Key:         "weekly",
		Name:        "Weekly",
		Description: "One digest per week",
	}
)
