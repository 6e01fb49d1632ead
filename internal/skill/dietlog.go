package skill

import (
	"context"
	"fmt"

	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/model"
)

const DietLogName = "diet-log"

// MealRecorder persists one resolved meal and computes the calorie-status
// reply for it.
type MealRecorder interface {
	RecordMeal(ctx context.Context, platformUserID string, mealType model.MealType, foods []model.FoodRecord) (model.Message, error)
}

// DietLog asks which meal an extracted food list belongs to, then records it.
// The diet pipeline starts it with the resolved foods seeded, so the only
// question the user sees is the meal type.
type DietLog struct {
	recorder MealRecorder
}

func NewDietLog(recorder MealRecorder) *DietLog {
	return &DietLog{recorder: recorder}
}

func (s *DietLog) Name() string { return DietLogName }

func (s *DietLog) ClearContextOnFinish() bool { return true }

var mealTypeLabels = map[string]model.MealType{
	"朝食": model.MealTypeBreakfast,
	"昼食": model.MealTypeLunch,
	"夕食": model.MealTypeDinner,
	"間食": model.MealTypeSnack,
}

func (s *DietLog) Required() []collector.Parameter {
	prompt := model.NewButtonsMessage(
		"どの食事でしたか？（朝食・昼食・夕食・間食）",
		"どの食事でしたか？",
		"朝食", "昼食", "夕食", "間食",
	)
	return []collector.Parameter{{
		Name:   "meal_type",
		Prompt: &prompt,
		Parse: func(_ context.Context, ev model.Event, _ *model.Session) (any, error) {
			if mealType, ok := mealTypeLabels[ev.InputText()]; ok {
				return mealType, nil
			}
			return nil, collector.ErrParse
		},
	}}
}

func (s *DietLog) Optional() []collector.Parameter {
	return []collector.Parameter{{Name: "foods"}}
}

func (s *DietLog) Finish(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	foods, err := model.ConfirmedAs[[]model.FoodRecord](sess, "foods")
	if err != nil {
		return err
	}
	mealType, err := model.ConfirmedAs[model.MealType](sess, "meal_type")
	if err != nil {
		return err
	}

	reply, err := s.recorder.RecordMeal(ctx, sess.UserID, mealType, foods)
	if err != nil {
		return fmt.Errorf("recording meal: %w", err)
	}
	return bot.Reply(ctx, reply)
}
