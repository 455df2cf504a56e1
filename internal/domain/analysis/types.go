package analysis

import (
	"context"
	"time"

	"fro-server/internal/domain/image"
)

// Identification is the identifier's answer for one photo.
type Identification struct {
	CommonName  string  `json:"commonName" description:"O nome comum da planta identificada."`
	LatinName   string  `json:"latinName" description:"O nome científico (latim) da planta identificada."`
	Confidence  float64 `json:"confidence" description:"O nível de confiança da identificação (0-1)."`
	Description string  `json:"description" description:"Uma descrição muito concisa da planta, otimizada para smartphones (máximo 2 frases)."`
}

// ConfidenceValid reports whether Confidence lies in [0,1]. NaN is invalid.
func (i Identification) ConfidenceValid() bool {
	return i.Confidence >= 0 && i.Confidence <= 1
}

// HealthAnalysis is the health analyzer's answer for one photo.
type HealthAnalysis struct {
	IsHealthy bool   `json:"isHealthy" description:"Indica se a planta está saudável ou não."`
	Diagnosis string `json:"diagnosis" description:"Um diagnóstico conciso e direto da saúde da planta (máximo 2-3 frases)."`
	CareTips  string `json:"careTips" description:"Conselhos de cuidado imediatos e objetivos, em formato de tópicos ou frases curtas."`
}

// CareGuide is the optional topic-structured care plan.
type CareGuide struct {
	CareTips string `json:"careTips" description:"Dicas de cuidados personalizadas, estruturadas em tópicos (Rega, Luz, Solo, Fertilização, Problemas Comuns) e com linguagem objetiva."`
}

// Identifier names the plant in a photo.
type Identifier interface {
	IdentifyPlant(ctx context.Context, payload *image.Payload) (Identification, error)
}

// HealthAnalyzer diagnoses the plant in a photo given a description of it.
type HealthAnalyzer interface {
	AnalyzePlantHealth(ctx context.Context, payload *image.Payload, description string) (HealthAnalysis, error)
}

// CareAdvisor writes a care guide from a plant name and a health summary.
type CareAdvisor interface {
	GenerateCareTips(ctx context.Context, plantName, healthAnalysis string) (CareGuide, error)
}

// State is the orchestrator's position in an analysis cycle.
type State string

const (
	StateIdle            State = "idle"
	StateIdentifying     State = "identifying"
	StateHealthAnalyzing State = "health_analyzing"
	StateDone            State = "done"
	StateError           State = "error"
)

// Busy reports whether a cycle is in flight.
func (s State) Busy() bool {
	return s == StateIdentifying || s == StateHealthAnalyzing
}

// Cycle is one identify-then-diagnose run. Results are only set in StateDone.
type Cycle struct {
	ID             string          `json:"id,omitempty"`
	State          State           `json:"state"`
	TaskLabel      string          `json:"task_label,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
	Health         *HealthAnalysis `json:"health,omitempty"`
	CareGuide      *CareGuide      `json:"care_guide,omitempty"`
	Failure        string          `json:"failure,omitempty"`
	StartedAt      time.Time       `json:"started_at,omitempty"`
	FinishedAt     time.Time       `json:"finished_at,omitempty"`
}

// Loading reports whether a remote call is in progress.
func (c Cycle) Loading() bool {
	return c.State.Busy()
}

func (c Cycle) clone() Cycle {
	out := c
	if c.Identification != nil {
		v := *c.Identification
		out.Identification = &v
	}
	if c.Health != nil {
		v := *c.Health
		out.Health = &v
	}
	if c.CareGuide != nil {
		v := *c.CareGuide
		out.CareGuide = &v
	}
	return out
}
