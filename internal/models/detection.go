package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Detection statuses
const (
	DetectionPending   = "pending"
	DetectionConfirmed = "confirmed"
	DetectionRejected  = "rejected"
	DetectionMoved     = "moved"
)

// Detection types emitted by the pattern engine
const (
	DetectionSwingHigh    = "swing_high"
	DetectionSwingLow     = "swing_low"
	DetectionBOSBullish   = "bos_bullish"
	DetectionBOSBearish   = "bos_bearish"
	DetectionCHOCHBullish = "choch_bullish"
	DetectionCHOCHBearish = "choch_bearish"
)

// Structure labels (market structure classification)
const (
	StructureHigherHigh = "HH"
	StructureHigherLow  = "HL"
	StructureLowerHigh  = "LH"
	StructureLowerLow   = "LL"
)

// Detection sources
const (
	SourceEngine = "engine"
	SourceManual = "manual"
)

// Detection represents a single proposed pattern event on one candle.
// Detections are created by the pattern engine (or an "add" correction)
// and mutated only through corrections.
type Detection struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	CandleIndex   int             `json:"candle_index"`
	CandleTime    time.Time       `json:"candle_time"`
	Price         decimal.Decimal `json:"price"`
	DetectionType string          `json:"detection_type"`
	Structure     string          `json:"structure,omitempty"`
	Status        string          `json:"status"`
	Confidence    float64         `json:"confidence,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Session is the collaboration scope containing one chart's detections,
// corrections, comments and votes.
type Session struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
