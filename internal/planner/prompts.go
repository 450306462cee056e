package planner

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/system_prompt.md
var systemPrompt string

//go:embed prompts/bulk_prompt.md
var bulkPrompt string

//go:embed prompts/day_prompt.md
var dayPrompt string

//go:embed prompts/replacement_prompt.md
var replacementPrompt string

var promptFuncs = template.FuncMap{
	"join": func(items any, sep string) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []MealTiming:
			parts := make([]string, len(v))
			for i, t := range v {
				parts[i] = string(t)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(v)
		}
	},
}

var (
	bulkTmpl        = template.Must(template.New("Bulk").Funcs(promptFuncs).Parse(bulkPrompt))
	dayTmpl         = template.Must(template.New("Day").Funcs(promptFuncs).Parse(dayPrompt))
	replacementTmpl = template.Must(template.New("Replacement").Funcs(promptFuncs).Parse(replacementPrompt))
)

type planPromptData struct {
	UserNutritionProfile
	Slots    []MealTiming
	Total    int
	Day      string
	DayIndex int
}

type replacementPromptData struct {
	Current     GeneratedMeal
	Timing      MealTiming
	Preferences ReplacementPreferences
	Targets     NutritionTargets
}

func newPlanPromptData(p UserNutritionProfile, dayIndex int) planPromptData {
	return planPromptData{
		UserNutritionProfile: p,
		Slots:                p.SlotTimings(),
		Total:                p.MealsPerDayTotal(),
		Day:                  DayNames[dayIndex],
		DayIndex:             dayIndex,
	}
}

func buildBulkPrompt(p UserNutritionProfile) (string, error) {
	return render(bulkTmpl, newPlanPromptData(p, 0))
}

func buildDayPrompt(p UserNutritionProfile, dayIndex int) (string, error) {
	return render(dayTmpl, newPlanPromptData(p, dayIndex))
}

func buildReplacementPrompt(data replacementPromptData) (string, error) {
	return render(replacementTmpl, data)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
