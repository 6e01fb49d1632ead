package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"calobot.app/bot/common/id"
	"calobot.app/bot/core/db"
	"calobot.app/bot/internal/model"
)

const dateLayout = "2006-01-02"

type dietHistoryStore struct {
	db *db.DB
}

func NewDietHistoryStore(database *db.DB) DietHistoryStore {
	return &dietHistoryStore{db: database}
}

func (s *dietHistoryStore) Create(ctx context.Context, entry *model.DietEntry) error {
	if entry.ID == 0 {
		entry.ID = id.New()
	}

	foods, err := json.Marshal(entry.Foods)
	if err != nil {
		return fmt.Errorf("encoding foods: %w", err)
	}

	err = s.db.Pool().QueryRow(ctx, `
		INSERT INTO diet_history (id, person_id, diet_date, meal_type, foods, total_calories, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at`,
		entry.ID, entry.PersonID, entry.Date, entry.MealType, foods, entry.TotalCalories,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating diet history entry: %w", err)
	}
	return nil
}

func (s *dietHistoryStore) ListByDate(ctx context.Context, personID int64, date time.Time) ([]model.DietEntry, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, person_id, diet_date, meal_type, foods, total_calories, created_at
		FROM diet_history
		WHERE person_id = $1 AND diet_date = $2
		ORDER BY created_at`,
		personID, date.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("listing diet history: %w", err)
	}
	defer rows.Close()

	var entries []model.DietEntry
	for rows.Next() {
		var entry model.DietEntry
		var foods []byte
		if err := rows.Scan(&entry.ID, &entry.PersonID, &entry.Date, &entry.MealType,
			&foods, &entry.TotalCalories, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning diet history entry: %w", err)
		}
		if err := json.Unmarshal(foods, &entry.Foods); err != nil {
			return nil, fmt.Errorf("decoding foods: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diet history: %w", err)
	}
	return entries, nil
}

func (s *dietHistoryStore) SumCaloriesByDate(ctx context.Context, personID int64, date time.Time) (float64, error) {
	var total float64
	err := s.db.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(total_calories), 0)
		FROM diet_history
		WHERE person_id = $1 AND diet_date = $2`,
		personID, date.Format(dateLayout),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing calories: %w", err)
	}
	return total, nil
}
