// Package memory is an in-process graph.Repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/medrag/internal/graph"
	"github.com/efebarandurmaz/medrag/internal/history"
)

type event struct {
	date       string
	chronic    bool
	conditions []string
	medicines  []string
}

// Graph keeps patients, events and labels in maps.
type Graph struct {
	mu       sync.RWMutex
	patients map[string][]string // patient id -> event ids, in projection order
	events   map[string]event
	labels   map[string]string // normalized name -> first label seen
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		patients: make(map[string][]string),
		events:   make(map[string]event),
		labels:   make(map[string]string),
	}
}

func (g *Graph) ProjectRecord(_ context.Context, rec history.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.events[rec.ID]; ok {
		return nil
	}
	ev := event{
		date:       rec.Date,
		chronic:    rec.IsChronic,
		conditions: g.keys(rec.Diagnosis),
		medicines:  g.keys(rec.Medicines),
	}
	g.events[rec.ID] = ev
	g.patients[rec.PatientID] = append(g.patients[rec.PatientID], rec.ID)
	return nil
}

// keys normalizes names, drops blanks and duplicates, and remembers labels.
func (g *Graph) keys(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		k := graph.Normalize(n)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := g.labels[k]; !ok {
			g.labels[k] = n
		}
		out = append(out, k)
	}
	return out
}

func (g *Graph) PatientConditions(_ context.Context, patientID string) ([]graph.ConditionSummary, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byName := make(map[string]*graph.ConditionSummary)
	medSeen := make(map[string]map[string]bool)
	for _, id := range g.patients[patientID] {
		ev := g.events[id]
		for _, c := range ev.conditions {
			s, ok := byName[c]
			if !ok {
				s = &graph.ConditionSummary{
					Condition: g.labels[c],
					FirstSeen: ev.date,
					LastSeen:  ev.date,
					Medicines: []string{},
				}
				byName[c] = s
				medSeen[c] = make(map[string]bool)
			}
			s.Occurrences++
			s.Chronic = s.Chronic || ev.chronic
			if ev.date < s.FirstSeen {
				s.FirstSeen = ev.date
			}
			if ev.date > s.LastSeen {
				s.LastSeen = ev.date
			}
			for _, m := range ev.medicines {
				if !medSeen[c][m] {
					medSeen[c][m] = true
					s.Medicines = append(s.Medicines, g.labels[m])
				}
			}
		}
	}

	out := make([]graph.ConditionSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Condition < out[j].Condition
	})
	return out, nil
}

func (g *Graph) Close(context.Context) error { return nil }

var _ graph.Repository = (*Graph)(nil)
