// Package domain contains the core entities for EEG record analysis: findings extracted from a
// vision model's free-text report, the four clinical sections they are classified into, and the
// records persisted per analyzed page.
package domain

import (
	"fmt"
)

// LocationUnspecified is the location given to a finding whose line carries no parenthesized location.
const LocationUnspecified = "unspecified"

// Default coordinates point at the image center on the 0..1000 grid.
const (
	DefaultCoordinateX = 500
	DefaultCoordinateY = 500
)

// Marker box size used by the rendering layer, since the model only supplies a point.
const (
	DefaultMarkerWidth  = 30
	DefaultMarkerHeight = 20
)

// Summaries attached to an analysis result.
const (
	SummaryAnalyzed   = "EEG image analyzed successfully."
	SummaryNoFindings = "No findings detected."
)

// Coordinates is a point on the normalized 0..1000 image grid.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Box is a marker positioned on the normalized image grid.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Finding is one atomic observation parsed from a single line of the model response.
type Finding struct {
	ID          int         `json:"id"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	Coordinates Coordinates `json:"coordinates"`
}

// HasLocation reports whether the finding named a location.
func (f Finding) HasLocation() bool {
	return f.Location != LocationUnspecified
}

// RawFinding is a finding as received from outside the process (HTTP body, MCP call, stored JSON).
// Every field is optional; Normalize applies the defaults.
type RawFinding struct {
	ID          *int            `json:"id,omitempty"`
	Description *string         `json:"description,omitempty"`
	Location    *string         `json:"location,omitempty"`
	Coordinates *RawCoordinates `json:"coordinates,omitempty"`
}

// RawCoordinates holds optional coordinate values.
type RawCoordinates struct {
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
}

// Normalize converts the raw record into a Finding. A missing or non-positive id is replaced by
// fallbackID, a missing location by LocationUnspecified and missing coordinates by the image center.
func (r RawFinding) Normalize(fallbackID int) Finding {
	f := Finding{
		ID:          fallbackID,
		Location:    LocationUnspecified,
		Coordinates: Coordinates{X: DefaultCoordinateX, Y: DefaultCoordinateY},
	}
	if r.ID != nil && *r.ID > 0 {
		f.ID = *r.ID
	}
	if r.Description != nil {
		f.Description = *r.Description
	}
	if r.Location != nil {
		f.Location = *r.Location
	}
	if r.Coordinates != nil {
		if r.Coordinates.X != nil {
			f.Coordinates.X = *r.Coordinates.X
		}
		if r.Coordinates.Y != nil {
			f.Coordinates.Y = *r.Coordinates.Y
		}
	}
	return f
}

// NormalizeFindings normalizes a batch, using the 1-based position as the fallback id.
func NormalizeFindings(raw []RawFinding) []Finding {
	out := make([]Finding, 0, len(raw))
	for i, r := range raw {
		out = append(out, r.Normalize(i+1))
	}
	return out
}

// ToRaw converts findings back into their wire form.
func ToRaw(findings []Finding) []RawFinding {
	out := make([]RawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, RawFinding{
			ID:          &f.ID,
			Description: &f.Description,
			Location:    &f.Location,
			Coordinates: &RawCoordinates{X: &f.Coordinates.X, Y: &f.Coordinates.Y},
		})
	}
	return out
}

// AnalysisResult is the outcome of analyzing one page image. Findings are stored unclassified.
type AnalysisResult struct {
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Cached   bool      `json:"cached,omitempty"`
}

// NewAnalysisResult builds a result with the summary derived from the finding count.
func NewAnalysisResult(findings []Finding) *AnalysisResult {
	if findings == nil {
		findings = []Finding{}
	}
	summary := SummaryNoFindings
	if len(findings) > 0 {
		summary = SummaryAnalyzed
	}
	return &AnalysisResult{Findings: findings, Summary: summary}
}

// String implements fmt.Stringer
func (r *AnalysisResult) String() string {
	return fmt.Sprintf("%d findings (%s)", len(r.Findings), r.Summary)
}

// RawAnalysis is an analysis result as received from outside the process or read back from storage.
type RawAnalysis struct {
	Findings []RawFinding `json:"findings"`
	Summary  string       `json:"summary,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Model    string       `json:"model,omitempty"`
}

// Normalize applies finding defaults. An empty summary is derived from the finding count.
func (r RawAnalysis) Normalize() *AnalysisResult {
	res := NewAnalysisResult(NormalizeFindings(r.Findings))
	if r.Summary != "" {
		res.Summary = r.Summary
	}
	res.Provider = r.Provider
	res.Model = r.Model
	return res
}
