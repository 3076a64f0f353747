package boltsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/dynamodb/table"
	bolt "go.etcd.io/bbolt"
)

// Get loads the entity of typeName with the given id. Every declared
// timestamp attribute is present in the returned record, nil when unset.
func (s *Store) Get(_ context.Context, typeName, id string) (cachekey.Record, error) {
	def, err := s.table(typeName)
	if err != nil {
		return cachekey.Record{}, err
	}
	var row Row
	err = s.db.View(func(tx *bolt.Tx) error {
		row, err = getRow(tx, typeName, id)
		return err
	})
	if err != nil {
		return cachekey.Record{}, err
	}

	timestamps := make(map[string]*time.Time, len(def.Timestamps))
	for _, name := range def.Timestamps {
		timestamps[name] = row.Timestamps[name]
	}
	return cachekey.Record{
		Ref:        cachekey.PersistedRef(typeName, id),
		Timestamps: timestamps,
	}, nil
}

// Put stores row verbatim and touches the parents it references, all in one
// write transaction.
func (s *Store) Put(_ context.Context, typeName string, row Row) error {
	def, err := s.table(typeName)
	if err != nil {
		return err
	}
	if row.ID == "" {
		return fmt.Errorf("%s: row id is required", typeName)
	}
	for name := range row.Timestamps {
		if !slices.Contains(def.Timestamps, name) {
			return fmt.Errorf("%w: %s has no timestamp %q", cachekey.ErrUnknownAttribute, typeName, name)
		}
	}
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putRow(tx, typeName, row); err != nil {
			return err
		}
		return s.touchParents(tx, def, row, now, map[string]bool{typeName + "/" + row.ID: true})
	})
}

// Touch sets field (default updated_at) of the entity to the current time and
// cascades to its parents.
func (s *Store) Touch(_ context.Context, typeName, id, field string) error {
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.touch(tx, typeName, id, field, now, map[string]bool{})
	})
}

// Delete removes the entity and touches its parents.
func (s *Store) Delete(_ context.Context, typeName, id string) error {
	def, err := s.table(typeName)
	if err != nil {
		return err
	}
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		row, err := getRow(tx, typeName, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(typeName)).Delete([]byte(id)); err != nil {
			return err
		}
		return s.touchParents(tx, def, row, now, map[string]bool{typeName + "/" + id: true})
	})
}

func (s *Store) touch(tx *bolt.Tx, typeName, id, field string, now time.Time, seen map[string]bool) error {
	ref := typeName + "/" + id
	if seen[ref] {
		return nil
	}
	seen[ref] = true

	def, err := s.table(typeName)
	if err != nil {
		return err
	}
	if field == "" {
		field = table.DefaultTimestamp
	}
	if !def.HasTimestamp(field) {
		return fmt.Errorf("%w: %s has no timestamp %q", cachekey.ErrUnknownAttribute, typeName, field)
	}
	row, err := getRow(tx, typeName, id)
	if err != nil {
		return err
	}
	row.Timestamps = maps.Clone(row.Timestamps)
	if row.Timestamps == nil {
		row.Timestamps = make(map[string]*time.Time)
	}
	row.Timestamps[field] = &now
	if err := putRow(tx, typeName, row); err != nil {
		return err
	}
	return s.touchParents(tx, def, row, now, seen)
}

func (s *Store) touchParents(tx *bolt.Tx, def table.TableDefinition, row Row, now time.Time, seen map[string]bool) error {
	for _, t := range def.Touches {
		parentID := row.Refs[t.ForeignKey]
		if parentID == "" {
			continue
		}
		err := s.touch(tx, t.Parent, parentID, t.TouchedField(), now, seen)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func getRow(tx *bolt.Tx, typeName, id string) (Row, error) {
	b := tx.Bucket([]byte(typeName))
	if b == nil {
		return Row{}, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	raw := b.Get([]byte(id))
	if raw == nil {
		return Row{}, fmt.Errorf("%w: %s/%s", ErrNotFound, typeName, id)
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return Row{}, fmt.Errorf("decode %s/%s: %w", typeName, id, err)
	}
	return row, nil
}

func putRow(tx *bolt.Tx, typeName string, row Row) error {
	b := tx.Bucket([]byte(typeName))
	if b == nil {
		return fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", typeName, row.ID, err)
	}
	return b.Put([]byte(row.ID), raw)
}
