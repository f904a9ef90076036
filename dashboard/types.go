package dashboard

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cepro/linewatch/docstore"
)

// Relay is a controllable on/off switch, attached either to the transformer or to
// a distribution point.
type Relay struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsOn bool   `json:"isOn"`
}

// Transformer is the single feeding transformer of the deployment. It owns its
// relay by composition.
type Transformer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Relay Relay  `json:"relay"`
}

// DistributionPoint is a monitored tap on the line. Its identity is ID, unique
// within the dashboard. Current is written only by telemetry ingestion, IsOn only
// by the relay toggle.
type DistributionPoint struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Current         float64 `json:"current"`
	IsOn            bool    `json:"isOn"`
	HousesConnected int     `json:"housesConnected"`
}

// State is the whole dashboard document: one transformer, an ordered list of
// distribution points, the operator-set safety threshold in amps and any alert
// messages. There is exactly one instance per deployment, stored at Path.
type State struct {
	Transformer        Transformer         `json:"transformer"`
	DistributionPoints []DistributionPoint `json:"distributionPoints"`
	SafetyThreshold    float64             `json:"safetyThreshold"`
	Alerts             []string            `json:"alerts"`
}

// ChartPoint is one sample of the derived average-current series. It is never
// persisted - the view model keeps a short trailing window in memory.
type ChartPoint struct {
	Time           time.Time `json:"time"`
	AverageCurrent float64   `json:"averageCurrent"`
}

// AverageCurrent is the arithmetic mean of the current readings over the
// distribution points whose relay is on, rounded to 2 decimal places. The mean
// over zero active points is 0.
func (s State) AverageCurrent() float64 {
	sum := 0.0
	n := 0
	for _, dp := range s.DistributionPoints {
		if dp.IsOn {
			sum += dp.Current
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*100) / 100
}

// Overloaded reports whether the distribution point is in overload at display
// time: relay on and current strictly above the threshold. An exact match with
// the threshold is not an overload.
func (dp DistributionPoint) Overloaded(safetyThreshold float64) bool {
	return dp.IsOn && dp.Current > safetyThreshold
}

// Point returns the distribution point with the given id, or nil.
func (s *State) Point(id string) *DistributionPoint {
	for i := range s.DistributionPoints {
		if s.DistributionPoints[i].ID == id {
			return &s.DistributionPoints[i]
		}
	}
	return nil
}

// StateFromDocument converts a raw store document into a typed State.
func StateFromDocument(doc docstore.Document) (State, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return State{}, fmt.Errorf("marshal document: %w", err)
	}
	var state State
	err = json.Unmarshal(raw, &state)
	if err != nil {
		return State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// Document converts the typed State into the raw document shape used by the store.
func (s State) Document() (docstore.Document, error) {
	return asDocument(s)
}

func asDocument(v any) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var doc docstore.Document
	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
