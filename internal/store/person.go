package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"calobot.app/bot/core/db"
	"calobot.app/bot/internal/model"
)

type personStore struct {
	db *db.DB
}

func NewPersonStore(database *db.DB) PersonStore {
	return &personStore{db: database}
}

func (s *personStore) GetByPlatformUserID(ctx context.Context, platformUserID string) (*model.Person, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT id, platform_user_id, display_name, birth_date, height_cm, sex, created_at
		FROM persons
		WHERE platform_user_id = $1`,
		platformUserID,
	)
	return scanPerson(row)
}

func (s *personStore) GetByID(ctx context.Context, id int64) (*model.Person, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT id, platform_user_id, display_name, birth_date, height_cm, sex, created_at
		FROM persons
		WHERE id = $1`,
		id,
	)
	return scanPerson(row)
}

func (s *personStore) Upsert(ctx context.Context, person *model.Person) error {
	err := s.db.Pool().QueryRow(ctx, `
		INSERT INTO persons (id, platform_user_id, display_name, birth_date, height_cm, sex, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (platform_user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    birth_date = EXCLUDED.birth_date,
		    height_cm = EXCLUDED.height_cm,
		    sex = EXCLUDED.sex
		RETURNING id, created_at`,
		person.ID, person.PlatformUserID, person.DisplayName, person.BirthDate, person.HeightCm, person.Sex,
	).Scan(&person.ID, &person.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting person: %w", err)
	}
	return nil
}

func scanPerson(row pgx.Row) (*model.Person, error) {
	var p model.Person
	err := row.Scan(&p.ID, &p.PlatformUserID, &p.DisplayName, &p.BirthDate, &p.HeightCm, &p.Sex, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning person: %w", err)
	}
	return &p, nil
}
