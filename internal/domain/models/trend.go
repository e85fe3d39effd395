package models

import (
	"math"
	"time"
)

// Point is a single moving-average sample. A NaN value marks a missing sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Missing reports whether the sample carries no usable value.
func (p Point) Missing() bool {
	return math.IsNaN(p.Value) || math.IsInf(p.Value, 0)
}

// Segment is a contiguous index range of a series approximated by one line.
type Segment struct {
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	StartValue float64   `json:"start_value"`
	EndValue   float64   `json:"end_value"`
	Slope      float64   `json:"slope"`
	Length     int       `json:"length"`
}

// Contains reports whether ts falls inside [StartTime, EndTime].
func (s Segment) Contains(ts time.Time) bool {
	return !ts.Before(s.StartTime) && !ts.After(s.EndTime)
}

type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionLateral Direction = "lateral"
)

// Decisive is true for bullish and bearish.
func (d Direction) Decisive() bool {
	return d == DirectionBullish || d == DirectionBearish
}

type ClassifiedSegment struct {
	Segment
	Direction Direction `json:"direction"`
}

// DirectionChange marks the start of a segment whose direction differs from
// the previous one and is decisive.
type DirectionChange struct {
	Timestamp     time.Time `json:"timestamp"`
	Previous      Direction `json:"previous"`
	New           Direction `json:"new"`
	PreviousSlope float64   `json:"previous_slope"`
	NewSlope      float64   `json:"new_slope"`
}
