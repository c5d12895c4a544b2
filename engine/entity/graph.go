package entity

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/propwatch/propwatch/engine/domain"
)

// GraphSource materializes the curated table from a Neo4j graph shaped as
// (:Alias {spelling})-[:ALIAS_OF]->(:Entity {key, display, desc}). The graph
// is read once at startup; the registry stays frozen for the run.
type GraphSource struct {
	Driver neo4j.DriverWithContext
}

func (s GraphSource) Load(ctx context.Context) (Table, error) {
	sess := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	var t Table

	result, err := sess.Run(ctx,
		`MATCH (e:Entity) RETURN e.key AS key, e.display AS display, e.desc AS desc`, nil)
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrMissingTable, err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		t.Entities = append(t.Entities, Entity{
			Key:     stringValue(rec, "key"),
			Display: stringValue(rec, "display"),
			Desc:    stringValue(rec, "desc"),
		})
	}
	if err := result.Err(); err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrMissingTable, err)
	}

	result, err = sess.Run(ctx,
		`MATCH (a:Alias)-[:ALIAS_OF]->(e:Entity)
		 RETURN a.spelling AS spelling, e.key AS key`, nil)
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrMissingTable, err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		t.Aliases = append(t.Aliases, AliasEntry{
			Spelling: stringValue(rec, "spelling"),
			Key:      stringValue(rec, "key"),
		})
	}
	if err := result.Err(); err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrMissingTable, err)
	}
	return t, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
