package models

import "time"

// QuotaState is the process-wide budget consumption tracked by the governor.
type QuotaState struct {
	WindowStart   time.Time `json:"windowStart"`
	Day           time.Time `json:"day"`
	DailyRequests int       `json:"dailyRequests"`
	DailyTokens   int       `json:"dailyTokens"`
	MinuteTokens  int       `json:"minuteTokens"`
}

// QuotaSnapshot is a read-only view of the governor for display.
type QuotaSnapshot struct {
	QuotaState
	InFlight        int `json:"inFlight"`
	ReservedTokens  int `json:"reservedTokens"`
	MaxRequests     int `json:"maxRequests"`
	MaxDailyTokens  int `json:"maxDailyTokens"`
	MaxMinuteTokens int `json:"maxMinuteTokens"`
	MaxConcurrent   int `json:"maxConcurrent"`
}

// DailyTokenPercent returns the share of the daily token budget already spent.
func (s QuotaSnapshot) DailyTokenPercent() float64 {
	if s.MaxDailyTokens <= 0 {
		return 0
	}
	return float64(s.DailyTokens) / float64(s.MaxDailyTokens) * 100
}

// DailyRequestPercent returns the share of the daily request budget already spent.
func (s QuotaSnapshot) DailyRequestPercent() float64 {
	if s.MaxRequests <= 0 {
		return 0
	}
	return float64(s.DailyRequests) / float64(s.MaxRequests) * 100
}
