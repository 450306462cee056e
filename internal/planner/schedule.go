package planner

// BuildSchedule turns a validated plan into templates and schedule entries.
// Meals with the exact same name share one template; the name index lives
// only for the duration of this call. meal_order counts from 1 within each
// day and timing. newID supplies identifiers for the created records.
func BuildSchedule(planID string, plan GeneratedMealPlan, newID func() string) ([]MealTemplate, []ScheduleEntry) {
	templateIDs := make(map[string]string)
	var (
		templates []MealTemplate
		entries   []ScheduleEntry
	)

	for _, day := range plan.WeeklyPlan {
		order := make(map[MealTiming]int)
		for _, meal := range day.Meals {
			id, ok := templateIDs[meal.Name]
			if !ok {
				id = newID()
				templateIDs[meal.Name] = id
				tmpl := MealTemplate{ID: id, PlanID: planID, GeneratedMeal: meal}
				// portion and optionality belong to the slot, not the recipe
				tmpl.PortionMultiplier = 1
				tmpl.IsOptional = false
				templates = append(templates, tmpl)
			}

			order[meal.MealTiming]++
			entries = append(entries, ScheduleEntry{
				ID:                newID(),
				PlanID:            planID,
				TemplateID:        id,
				DayOfWeek:         day.DayIndex,
				MealTiming:        meal.MealTiming,
				MealOrder:         order[meal.MealTiming],
				PortionMultiplier: meal.Portion(),
				IsOptional:        meal.IsOptional,
			})
		}
	}
	return templates, entries
}

// BuildWeeklyView groups scheduled meals by day name and timing. Each
// template copy carries its slot's portion and optional flag.
func BuildWeeklyView(meals []ScheduledMeal) WeeklyView {
	view := make(WeeklyView)
	for _, sm := range meals {
		if sm.Entry.DayOfWeek < 0 || sm.Entry.DayOfWeek >= len(DayNames) {
			continue
		}
		dayName := DayNames[sm.Entry.DayOfWeek]
		if view[dayName] == nil {
			view[dayName] = make(map[MealTiming][]MealTemplate)
		}
		tmpl := sm.Template
		tmpl.PortionMultiplier = sm.Entry.PortionMultiplier
		tmpl.IsOptional = sm.Entry.IsOptional
		view[dayName][sm.Entry.MealTiming] = append(view[dayName][sm.Entry.MealTiming], tmpl)
	}
	return view
}
