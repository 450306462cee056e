package telegram

import (
	"fmt"
	"strings"

	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var timingOrder = []planner.MealTiming{
	planner.Breakfast, planner.MorningSnack, planner.Lunch,
	planner.AfternoonSnack, planner.Dinner, planner.EveningSnack,
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// timingLabel turns AFTERNOON_SNACK into "Afternoon snack".
func timingLabel(t planner.MealTiming) string {
	s := strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatMealLine(m planner.MealTemplate) string {
	line := fmt.Sprintf("%s (%.0f kcal", escape(m.Name), m.Calories*portion(m))
	if m.PrepTimeMinutes > 0 {
		line += fmt.Sprintf(", %d min", m.PrepTimeMinutes)
	}
	line += ")"
	if m.PortionMultiplier > 0 && m.PortionMultiplier != 1 {
		line += fmt.Sprintf(" ×%.1f", m.PortionMultiplier)
	}
	if m.IsOptional {
		line += " _optional_"
	}
	return line
}

func portion(m planner.MealTemplate) float64 {
	if m.PortionMultiplier > 0 {
		return m.PortionMultiplier
	}
	return 1
}

func formatPlanMarkdown(plan *planner.Plan, view planner.WeeklyView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 *Weekly Meal Plan* (week of %s)\n", plan.WeekStartDate.Format("2006-01-02"))

	for _, day := range planner.DayNames {
		meals, ok := view[day]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n*%s*\n", day)
		for _, timing := range timingOrder {
			for _, m := range meals[timing] {
				fmt.Fprintf(&sb, "• %s: %s\n", timingLabel(timing), formatMealLine(m))
			}
		}
	}

	s := plan.Summary
	fmt.Fprintf(&sb, "\n📊 *Daily average:* %.0f kcal, %.0f g protein, %.0f g carbs, %.0f g fat\n",
		s.AvgDailyCalories, s.AvgDailyProtein, s.AvgDailyCarbs, s.AvgDailyFats)
	fmt.Fprintf(&sb, "🎯 *Goal adherence:* %.0f%%\n", s.GoalAdherencePercentage)

	if len(plan.MealPrepSuggestions) > 0 {
		sb.WriteString("\n🔪 *Meal prep*\n")
		for _, tip := range plan.MealPrepSuggestions {
			fmt.Fprintf(&sb, "• %s\n", escape(tip))
		}
	}
	return sb.String()
}

func formatShoppingMarkdown(list *shopping.List) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n")
	for _, group := range list.Categories {
		fmt.Fprintf(&sb, "\n*%s* ($%.2f)\n", escape(group.Category), group.Subtotal)
		for _, item := range group.Items {
			mark := "•"
			if item.IsPurchased {
				mark = "✅"
			}
			fmt.Fprintf(&sb, "%s %s: %g %s\n", mark, escape(item.Name), item.Quantity, escape(item.Unit))
		}
	}
	fmt.Fprintf(&sb, "\n💰 *Estimated total:* $%.2f", list.TotalCost)
	return sb.String()
}
