package simulator

import (
	"math"
	"math/rand"
	"time"
)

// Pattern shapes load over time. Factor returns a multiplier applied to
// a service's base load, so 1.0 means baseline.
type Pattern interface {
	Factor(now time.Time) float64
	Name() string
}

var (
	PatternSteady Pattern = &SteadyPattern{}
	PatternDaily  Pattern = &DailyPattern{}
	PatternWeekly Pattern = &WeeklyPattern{}
	PatternRandom Pattern = &RandomPattern{}
)

func ParsePattern(name string) Pattern {
	switch name {
	case "daily":
		return PatternDaily
	case "weekly":
		return PatternWeekly
	case "random":
		return PatternRandom
	case "ramp":
		return &RampPattern{start: time.Now()}
	case "sine":
		return &SinePattern{Period: 10 * time.Minute, Amplitude: 0.3}
	default:
		return PatternSteady
	}
}

// SteadyPattern holds load at baseline.
type SteadyPattern struct{}

func (p *SteadyPattern) Factor(time.Time) float64 { return 1.0 }
func (p *SteadyPattern) Name() string             { return "steady" }

// DailyPattern follows a business-hours traffic cycle: morning and
// afternoon peaks, quiet nights.
type DailyPattern struct{}

func (p *DailyPattern) Factor(now time.Time) float64 {
	switch hour := now.Hour(); {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

func (p *DailyPattern) Name() string { return "daily" }

// WeeklyPattern is the daily cycle with weekends halved.
type WeeklyPattern struct{}

func (p *WeeklyPattern) Factor(now time.Time) float64 {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 0.5
	}
	return (&DailyPattern{}).Factor(now)
}

func (p *WeeklyPattern) Name() string { return "weekly" }

// RandomPattern jitters between half and one-and-a-half baseline.
type RandomPattern struct{}

func (p *RandomPattern) Factor(time.Time) float64 { return 0.5 + rand.Float64() }
func (p *RandomPattern) Name() string             { return "random" }

// RampPattern grows load 2% per minute from its creation, capped at
// +50%. Useful for watching scale-up thresholds trip one by one.
type RampPattern struct {
	start time.Time
}

func (p *RampPattern) Factor(now time.Time) float64 {
	minutes := now.Sub(p.start).Minutes()
	return 1.0 + math.Min(minutes*2, 50)/100
}

func (p *RampPattern) Name() string { return "ramp" }

// SinePattern oscillates around baseline with the given period.
type SinePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p *SinePattern) Factor(now time.Time) float64 {
	phase := float64(now.UnixNano()) / float64(p.Period.Nanoseconds()) * 2 * math.Pi
	return 1.0 + math.Sin(phase)*p.Amplitude
}

func (p *SinePattern) Name() string { return "sine" }
