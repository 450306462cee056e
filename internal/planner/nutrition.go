package planner

import "math"

// Summarize computes weekly averages and goal adherence for plan. Sums are
// always divided by 7, even when some days hold no meals. Adherence is the
// mean of calorie and protein adherence, each capped at 100 first.
func Summarize(plan GeneratedMealPlan, targets NutritionTargets) WeeklyNutritionSummary {
	var cal, protein, carbs, fats float64
	for _, day := range plan.WeeklyPlan {
		for _, m := range day.Meals {
			portion := m.Portion()
			cal += m.Calories * portion
			protein += m.ProteinG * portion
			carbs += m.CarbsG * portion
			fats += m.FatsG * portion
		}
	}

	const days = float64(len(DayNames))
	avgCal := cal / days
	avgProtein := protein / days

	adherence := (axisAdherence(avgCal, targets.Calories) + axisAdherence(avgProtein, targets.ProteinG)) / 2

	return WeeklyNutritionSummary{
		AvgDailyCalories:        round1(avgCal),
		AvgDailyProtein:         round1(avgProtein),
		AvgDailyCarbs:           round1(carbs / days),
		AvgDailyFats:            round1(fats / days),
		GoalAdherencePercentage: round1(adherence),
	}
}

func axisAdherence(avg, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Min(100, avg/target*100)
}
