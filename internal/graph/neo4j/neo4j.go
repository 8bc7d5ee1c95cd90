package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/medrag/internal/graph"
	"github.com/efebarandurmaz/medrag/internal/history"
)

// Repository implements graph.Repository using Neo4j.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies the connection.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

const mergeEvent = "MERGE (p:Patient {id: $patient}) " +
	"MERGE (e:Event {id: $record}) " +
	"SET e.date = $date, e.chronic = $chronic, e.type = $type " +
	"MERGE (p)-[:HAD]->(e)"

const mergeCondition = "MATCH (e:Event {id: $record}) " +
	"MERGE (c:Condition {name: $name}) " +
	"ON CREATE SET c.label = $label " +
	"MERGE (e)-[:DIAGNOSED]->(c)"

const mergeMedicine = "MATCH (e:Event {id: $record}) " +
	"MERGE (m:Medicine {name: $name}) " +
	"ON CREATE SET m.label = $label " +
	"MERGE (e)-[:PRESCRIBED]->(m)"

func (r *Repository) ProjectRecord(ctx context.Context, rec history.Record) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, mergeEvent, map[string]any{
			"patient": rec.PatientID,
			"record":  rec.ID,
			"date":    rec.Date,
			"chronic": rec.IsChronic,
			"type":    rec.Type,
		})
		if err != nil {
			return nil, err
		}
		for _, d := range rec.Diagnosis {
			key := graph.Normalize(d)
			if key == "" {
				continue
			}
			if _, err := tx.Run(ctx, mergeCondition, map[string]any{"record": rec.ID, "name": key, "label": d}); err != nil {
				return nil, err
			}
		}
		for _, m := range rec.Medicines {
			key := graph.Normalize(m)
			if key == "" {
				continue
			}
			if _, err := tx.Run(ctx, mergeMedicine, map[string]any{"record": rec.ID, "name": key, "label": m}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("project record %s: %w", rec.ID, err)
	}
	return nil
}

const patientConditions = "MATCH (:Patient {id: $patient})-[:HAD]->(e:Event)-[:DIAGNOSED]->(c:Condition) " +
	"OPTIONAL MATCH (e)-[:PRESCRIBED]->(m:Medicine) " +
	"WITH c, e, collect(DISTINCT m.label) AS meds " +
	"RETURN c.label AS condition, count(DISTINCT e) AS occurrences, " +
	"max(CASE WHEN e.chronic THEN 1 ELSE 0 END) = 1 AS chronic, " +
	"min(e.date) AS first_seen, max(e.date) AS last_seen, " +
	"reduce(acc = [], ms IN collect(meds) | acc + [x IN ms WHERE NOT x IN acc]) AS medicines " +
	"ORDER BY occurrences DESC, condition ASC"

func (r *Repository) PatientConditions(ctx context.Context, patientID string) ([]graph.ConditionSummary, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, patientConditions, map[string]any{"patient": patientID})
		if err != nil {
			return nil, err
		}

		out := []graph.ConditionSummary{}
		for records.Next(ctx) {
			rec := records.Record()
			s := graph.ConditionSummary{Medicines: []string{}}
			if v, ok := rec.Get("condition"); ok {
				s.Condition, _ = v.(string)
			}
			if v, ok := rec.Get("occurrences"); ok {
				n, _ := v.(int64)
				s.Occurrences = int(n)
			}
			if v, ok := rec.Get("chronic"); ok {
				s.Chronic, _ = v.(bool)
			}
			if v, ok := rec.Get("first_seen"); ok {
				s.FirstSeen, _ = v.(string)
			}
			if v, ok := rec.Get("last_seen"); ok {
				s.LastSeen, _ = v.(string)
			}
			if v, ok := rec.Get("medicines"); ok {
				list, _ := v.([]any)
				for _, m := range list {
					if name, ok := m.(string); ok {
						s.Medicines = append(s.Medicines, name)
					}
				}
			}
			out = append(out, s)
		}
		return out, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("patient conditions: %w", err)
	}
	return result.([]graph.ConditionSummary), nil
}

// Ping verifies the driver can still reach the server.
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Repository)(nil)
