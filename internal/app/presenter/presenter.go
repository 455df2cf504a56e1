// Package presenter turns an analysis cycle into what the result card shows.
package presenter

import (
	"math"

	"fro-server/internal/domain/analysis"
)

const (
	LabelHealthy        = "Saudável"
	LabelNeedsAttention = "Requer Atenção"
)

// View is the display model of one cycle. Result fields are only filled
// once the cycle is done.
type View struct {
	State      analysis.State `json:"state"`
	Loading    bool           `json:"loading"`
	BusyLabel  string         `json:"busy_label,omitempty"`
	HasResults bool           `json:"has_results"`

	CommonName  string `json:"common_name,omitempty"`
	LatinName   string `json:"latin_name,omitempty"`
	Description string `json:"description,omitempty"`
	Confidence  int    `json:"confidence"`

	HealthLabel string `json:"health_label,omitempty"`
	IsHealthy   bool   `json:"is_healthy"`
	Diagnosis   string `json:"diagnosis,omitempty"`
	CareTips    string `json:"care_tips,omitempty"`
	CareGuide   string `json:"care_guide,omitempty"`

	Failure string `json:"failure,omitempty"`
}

// Render is pure: the same cycle always yields the same view.
func Render(c analysis.Cycle) View {
	v := View{
		State:   c.State,
		Loading: c.Loading(),
	}
	if v.Loading {
		v.BusyLabel = c.TaskLabel
	}
	if c.State == analysis.StateError {
		v.Failure = c.Failure
	}
	if c.State != analysis.StateDone || c.Identification == nil || c.Health == nil {
		return v
	}

	v.HasResults = true
	v.CommonName = c.Identification.CommonName
	v.LatinName = c.Identification.LatinName
	v.Description = c.Identification.Description
	v.Confidence = ConfidencePercent(c.Identification.Confidence)

	v.IsHealthy = c.Health.IsHealthy
	v.HealthLabel = HealthLabel(c.Health.IsHealthy)
	v.Diagnosis = c.Health.Diagnosis
	v.CareTips = c.Health.CareTips
	if c.CareGuide != nil {
		v.CareGuide = c.CareGuide.CareTips
	}
	return v
}

// ConfidencePercent rounds a 0..1 confidence to a whole percentage.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}

func HealthLabel(healthy bool) string {
	if healthy {
		return LabelHealthy
	}
	return LabelNeedsAttention
}
