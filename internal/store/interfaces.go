package store

import (
	"context"
	"errors"
	"time"

	"calobot.app/bot/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// PersonStore defines the contract for person profile data access
type PersonStore interface {
	GetByPlatformUserID(ctx context.Context, platformUserID string) (*model.Person, error)
	GetByID(ctx context.Context, id int64) (*model.Person, error)
	Upsert(ctx context.Context, person *model.Person) error
}

// DietHistoryStore defines the contract for diet history data access
type DietHistoryStore interface {
	Create(ctx context.Context, entry *model.DietEntry) error
	ListByDate(ctx context.Context, personID int64, date time.Time) ([]model.DietEntry, error)
	SumCaloriesByDate(ctx context.Context, personID int64, date time.Time) (float64, error)
}
