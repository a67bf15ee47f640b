package db

import (
	"context"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
)

const (
	sqlSelectOrigin = `SELECT id, origin_name, origin_type, host FROM origin`
	sqlUpsertOrigin = `INSERT INTO origin(origin_name, origin_type, host) VALUES (?, ?, ?)
		ON CONFLICT(origin_name) DO UPDATE SET origin_type = excluded.origin_type, host = excluded.host`
)

func scanOrigin(s scanner) (*domain.Origin, error) {
	var o domain.Origin
	var originType string
	if err := s.Scan(&o.Id, &o.Name, &originType, &o.Host); err != nil {
		return nil, err
	}
	o.Type = domain.OriginType(originType)
	return &o, nil
}

// UpsertOrigin inserts or updates an origin by name and sets its Id.
func (s *queries) UpsertOrigin(ctx context.Context, o *domain.Origin) error {
	if _, err := s.execWithRetry(ctx, sqlUpsertOrigin, o.Name, string(o.Type), o.Host); err != nil {
		return fmt.Errorf("saving origin %s: %w", o.Name, err)
	}
	stored, err := s.OriginByName(ctx, o.Name)
	if err != nil {
		return err
	}
	o.Id = stored.Id
	return nil
}

func (s *queries) OriginByName(ctx context.Context, name string) (*domain.Origin, error) {
	o, err := scanOrigin(s.q.QueryRowContext(ctx, sqlSelectOrigin+` WHERE origin_name = ?`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *queries) OriginById(ctx context.Context, id int64) (*domain.Origin, error) {
	o, err := scanOrigin(s.q.QueryRowContext(ctx, sqlSelectOrigin+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *queries) AllOrigins(ctx context.Context) ([]*domain.Origin, error) {
	rows, err := s.q.QueryContext(ctx, sqlSelectOrigin+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var origins []*domain.Origin
	for rows.Next() {
		o, err := scanOrigin(rows)
		if err != nil {
			return origins, err
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}
