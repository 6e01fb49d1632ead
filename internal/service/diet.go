// Package service holds the webhook dispatcher and the diet-logging
// pipeline that sit between the HTTP layer and the collector engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calobot.app/bot/common/logger"
	"calobot.app/bot/internal/model"
	"calobot.app/bot/internal/store"
)

// A message may mention at most this many foods; more is rejected before any
// nutrition lookup happens.
const maxFoodsPerMessage = 10

// ErrTooManyFoods rejects messages mentioning more foods than the cap.
var ErrTooManyFoods = errors.New("too many foods in one message")

// FoodExtractor pulls candidate food names out of free-form text.
type FoodExtractor interface {
	ExtractFoodNames(ctx context.Context, text string) ([]string, error)
}

// FoodResolver resolves a food name to nutrition records and tracks names it
// could not resolve.
type FoodResolver interface {
	Resolve(ctx context.Context, foodName string) (model.FoodCandidates, error)
	SaveUnidentified(ctx context.Context, foodName string) error
}

// DietService implements the diet-logging pipeline: extract foods from a
// message, resolve nutrition, persist the meal, and compute the
// remaining-calorie reply.
type DietService struct {
	persons   store.PersonStore
	history   store.DietHistoryStore
	extractor FoodExtractor
	resolver  FoodResolver
	now       func() time.Time
}

func NewDietService(persons store.PersonStore, history store.DietHistoryStore, extractor FoodExtractor, resolver FoodResolver) *DietService {
	return &DietService{
		persons:   persons,
		history:   history,
		extractor: extractor,
		resolver:  resolver,
		now:       time.Now,
	}
}

// ExtractFoods finds food mentions in a message and resolves each to its
// first nutrition candidate. Unresolvable names are reported to the
// unidentified-food registry best-effort; an empty result means the message
// mentioned no recognizable food.
func (s *DietService) ExtractFoods(ctx context.Context, text string) ([]model.FoodRecord, error) {
	names, err := s.extractor.ExtractFoodNames(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extracting food mentions: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) > maxFoodsPerMessage {
		return nil, fmt.Errorf("%w: %d foods, cap is %d", ErrTooManyFoods, len(names), maxFoodsPerMessage)
	}

	var foods []model.FoodRecord
	for _, name := range names {
		candidates, err := s.resolver.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if len(candidates.Records) == 0 {
			if err := s.resolver.SaveUnidentified(ctx, name); err != nil {
				slog.WarnContext(ctx, "failed to register unidentified food",
					"food_name", name, "error", err)
			}
			continue
		}
		// Provisional: take the first candidate.
		foods = append(foods, candidates.Records[0])
	}
	return foods, nil
}

// RecordMeal persists one meal for the user and returns the calorie-status
// reply message.
func (s *DietService) RecordMeal(ctx context.Context, platformUserID string, mealType model.MealType, foods []model.FoodRecord) (model.Message, error) {
	person, err := s.persons.GetByPlatformUserID(ctx, platformUserID)
	if err != nil {
		return model.Message{}, fmt.Errorf("fetching person: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{PersonID: logger.Ptr(person.ID)})

	var total float64
	for _, food := range foods {
		total += food.Calories
	}

	today := s.now()
	entry := &model.DietEntry{
		PersonID:      person.ID,
		Date:          today.Format("2006-01-02"),
		MealType:      mealType,
		Foods:         foods,
		TotalCalories: total,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return model.Message{}, fmt.Errorf("saving diet history: %w", err)
	}

	consumed, err := s.history.SumCaloriesByDate(ctx, person.ID, today)
	if err != nil {
		return model.Message{}, fmt.Errorf("summing consumed calories: %w", err)
	}

	return calorieReply(remainingCalories(person, consumed, today)), nil
}

// TodayHistory returns a person's diet entries for the current date.
func (s *DietService) TodayHistory(ctx context.Context, personID int64) ([]model.DietEntry, error) {
	entries, err := s.history.ListByDate(ctx, personID, s.now())
	if err != nil {
		return nil, fmt.Errorf("fetching today's history: %w", err)
	}
	return entries, nil
}

// MealTypeForTime maps a clock time to a meal type. Outside the windows the
// caller has to ask the user instead.
func MealTypeForTime(t time.Time) (model.MealType, bool) {
	switch h := t.Hour(); {
	case h >= 4 && h < 10:
		return model.MealTypeBreakfast, true
	case h >= 10 && h < 15:
		return model.MealTypeLunch, true
	case h >= 17 && h < 23:
		return model.MealTypeDinner, true
	}
	return "", false
}

// remainingCalories computes how many kcal the person may still eat today.
// Daily allowance is the Harris-Benedict basal metabolic rate for the
// standard weight at the person's height, scaled by a moderate activity
// factor. The second return is false when the profile lacks height or birth
// date, in which case the remainder is unknowable.
func remainingCalories(person *model.Person, consumed float64, at time.Time) (float64, bool) {
	if person.HeightCm <= 0 || person.BirthDate.IsZero() {
		return 0, false
	}

	heightM := person.HeightCm / 100
	standardWeight := 22 * heightM * heightM
	age := float64(person.Age(at))

	var bmr float64
	if person.Sex == model.SexFemale {
		bmr = 655.1 + 9.56*standardWeight + 1.85*person.HeightCm - 4.68*age
	} else {
		bmr = 66.47 + 13.75*standardWeight + 5.0*person.HeightCm - 6.76*age
	}

	const activityFactor = 1.5
	return bmr*activityFactor - consumed, true
}

// calorieReply picks the reply template by the sign of the remaining value.
func calorieReply(remaining float64, known bool) model.Message {
	switch {
	case !known:
		return model.NewTextMessage("あれ、満タンまであとどれくらいだろう・・")
	case remaining > 0:
		return model.NewTextMessage(fmt.Sprintf("満タンまであと%.0fkcalですよー。", remaining))
	case remaining < 0:
		return model.NewTextMessage(fmt.Sprintf("ぎゃー食べ過ぎです。%.0fkcal超過してます。", -remaining))
	}
	return model.NewTextMessage("カロリー、ちょうど満タンです！")
}
