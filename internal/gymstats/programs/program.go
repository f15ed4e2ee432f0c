package programs

import (
	"errors"
	"time"
)

var ErrProgramNotFound = errors.New("workout program not found")

// Structure describes how a program progresses over time.
type Structure string

const (
	StructureWeekly    Structure = "weekly"
	StructureRotating  Structure = "rotating"
	StructureBlock     Structure = "block"
	StructureFrequency Structure = "frequency"
)

func (s Structure) IsValid() bool {
	switch s {
	case StructureWeekly, StructureRotating, StructureBlock, StructureFrequency:
		return true
	}
	return false
}

type Program struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Structure   Structure `json:"structure"`
	CreatedAt   time.Time `json:"createdAt"`
	Weeks       []Week    `json:"weeks,omitempty"`
}

type Week struct {
	ID         string `json:"id"`
	WeekNumber int    `json:"weekNumber"`
	Days       []Day  `json:"days"`
}

type Day struct {
	ID        string        `json:"id"`
	Position  int           `json:"position"`
	Name      string        `json:"name"`
	IsRestDay bool          `json:"isRestDay"`
	Exercises []DayExercise `json:"exercises"`
}

// DayExercise is a template entry: the target for an exercise on a program day.
type DayExercise struct {
	ExerciseID   string   `json:"exerciseId"`
	ExerciseName string   `json:"exerciseName"`
	Sets         int      `json:"sets"`
	Reps         []int    `json:"reps"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// TotalWeeks is the number of weeks the program spans (the highest week number).
func (p Program) TotalWeeks() int {
	total := 0
	for _, w := range p.Weeks {
		total = max(total, w.WeekNumber)
	}
	return total
}

func (p Program) FindDay(weekNumber int, dayName string) (Day, bool) {
	for _, w := range p.Weeks {
		if w.WeekNumber != weekNumber {
			continue
		}
		for _, d := range w.Days {
			if d.Name == dayName {
				return d, true
			}
		}
	}
	return Day{}, false
}
