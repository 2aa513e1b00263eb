package models

import "time"

type BoothStatus string

const (
	BoothOnline      BoothStatus = "ONLINE"
	BoothOffline     BoothStatus = "OFFLINE"
	BoothMaintenance BoothStatus = "MAINTENANCE"
	BoothLocked      BoothStatus = "LOCKED"
	BoothTampered    BoothStatus = "TAMPERED"
)

// Sticky reports whether the telemetry simulator must leave the booth
// alone. LOCKED and MAINTENANCE booths are only released by an operator.
func (s BoothStatus) Sticky() bool {
	return s == BoothLocked || s == BoothMaintenance
}

type PollingBooth struct {
	ID                 string      `json:"id"`
	Location           string      `json:"location"`
	Status             BoothStatus `json:"status"`
	BatteryLevel       int         `json:"battery_level"`
	AccessibilityReady bool        `json:"accessibility_ready"`
	TotalVotes         int         `json:"total_votes"`
	LastHeartbeat      *time.Time  `json:"last_heartbeat,omitempty"`
}

type LogLevel string

const (
	LogInfo     LogLevel = "INFO"
	LogWarning  LogLevel = "WARNING"
	LogCritical LogLevel = "CRITICAL"
)

type LogCategory string

const (
	CategoryAccess   LogCategory = "ACCESS"
	CategoryVote     LogCategory = "VOTE"
	CategorySystem   LogCategory = "SYSTEM"
	CategorySecurity LogCategory = "SECURITY"
)

type SecurityLog struct {
	ID        string      `json:"id"`
	Level     LogLevel    `json:"level"`
	Category  LogCategory `json:"category"`
	Message   string      `json:"message"`
	BoothID   string      `json:"booth_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
