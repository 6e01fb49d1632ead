package model

import "time"

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Person is a registered user's profile as stored in the history database.
type Person struct {
	ID             int64     `json:"id"`
	PlatformUserID string    `json:"platform_user_id"`
	DisplayName    string    `json:"display_name"`
	BirthDate      time.Time `json:"birth_date"`
	HeightCm       float64   `json:"height_cm"`
	Sex            Sex       `json:"sex"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p Person) Age(at time.Time) int {
	years := at.Year() - p.BirthDate.Year()
	if at.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	return years
}

// FoodRecord is one identified food with its nutrition data.
type FoodRecord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
}

// FoodCandidates is the nutrition database's answer for one extracted food
// name. An empty Records list means the food could not be identified.
type FoodCandidates struct {
	Name    string       `json:"food_name"`
	Records []FoodRecord `json:"food_id_list"`
}

type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

// DietEntry is one saved meal in a person's diet history.
type DietEntry struct {
	ID            int64        `json:"id"`
	PersonID      int64        `json:"person_id"`
	Date          string       `json:"date"` // YYYY-MM-DD
	MealType      MealType     `json:"meal_type"`
	Foods         []FoodRecord `json:"foods"`
	TotalCalories float64      `json:"total_calories"`
	CreatedAt     time.Time    `json:"created_at"`
}
