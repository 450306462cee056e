package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"weekly-meal-planner/internal/llm"
)

// ErrRejected marks generated content that failed validation. It never
// leaves the generation layer; it only drives tier escalation.
var ErrRejected = errors.New("generated content rejected")

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// CheckStructure is the cheap pre-check run on raw model output before
// parsing: braces and brackets must balance and the text must end with a
// closing brace or bracket. Quotes are not tracked.
func CheckStructure(raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return reject("empty response")
	}
	if o, c := strings.Count(text, "{"), strings.Count(text, "}"); o != c {
		return reject("unbalanced braces: %d open, %d close", o, c)
	}
	if o, c := strings.Count(text, "["), strings.Count(text, "]"); o != c {
		return reject("unbalanced brackets: %d open, %d close", o, c)
	}
	if last := text[len(text)-1]; last != '}' && last != ']' {
		return reject("response does not end with } or ]")
	}
	return nil
}

// ValidatePlan checks a full-week response and decodes it. Days are
// returned sorted by day_index with canonical day names.
func ValidatePlan(raw string) (GeneratedMealPlan, error) {
	text := llm.StripCodeFence(raw)
	if err := CheckStructure(text); err != nil {
		return GeneratedMealPlan{}, err
	}

	var doc struct {
		WeeklyPlan          []json.RawMessage `json:"weekly_plan"`
		ShoppingTips        lenientStrings    `json:"shopping_tips"`
		MealPrepSuggestions lenientStrings    `json:"meal_prep_suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return GeneratedMealPlan{}, reject("invalid JSON: %v", err)
	}
	if len(doc.WeeklyPlan) != len(DayNames) {
		return GeneratedMealPlan{}, reject("weekly_plan has %d days, want %d", len(doc.WeeklyPlan), len(DayNames))
	}

	days := make([]DayPlan, len(doc.WeeklyPlan))
	claimed := make([]int, len(doc.WeeklyPlan))
	for i, rawDay := range doc.WeeklyPlan {
		day, labels, err := decodeDay(rawDay)
		if err != nil {
			return GeneratedMealPlan{}, fmt.Errorf("day %d: %w", i, err)
		}
		days[i] = day
		claimed[i] = labels.claimed()
	}

	// Trust the day labels only when they name every day exactly once.
	seen := make(map[int]bool, len(days))
	for _, idx := range claimed {
		if idx >= 0 {
			seen[idx] = true
		}
	}
	useClaimed := len(seen) == len(DayNames)
	for _, idx := range claimed {
		if idx < 0 {
			useClaimed = false
		}
	}

	plan := GeneratedMealPlan{
		WeeklyPlan:          make([]DayPlan, len(DayNames)),
		ShoppingTips:        []string(doc.ShoppingTips),
		MealPrepSuggestions: []string(doc.MealPrepSuggestions),
	}
	for i, day := range days {
		idx := i
		if useClaimed {
			idx = claimed[i]
		}
		day.DayIndex = idx
		day.Day = DayNames[idx]
		plan.WeeklyPlan[idx] = day
	}
	return plan, nil
}

// ValidateDay checks a single-day response for the requested day.
func ValidateDay(raw string, dayIndex int) (DayPlan, error) {
	text := llm.StripCodeFence(raw)
	if err := CheckStructure(text); err != nil {
		return DayPlan{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return DayPlan{}, reject("invalid JSON: %v", err)
	}
	// Some models wrap the day in a one-element weekly_plan.
	if wrapped, ok := fields["weekly_plan"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(wrapped, &list); err != nil || len(list) != 1 {
			return DayPlan{}, reject("weekly_plan wrapper must hold exactly one day")
		}
		text = string(list[0])
	}

	day, labels, err := decodeDay(json.RawMessage(text))
	if err != nil {
		return DayPlan{}, err
	}

	if labels.byName != dayIndex {
		return DayPlan{}, reject("day %q does not match requested %s", day.Day, DayNames[dayIndex])
	}
	if labels.byIndex >= 0 && labels.byIndex != dayIndex {
		return DayPlan{}, reject("day_index %d does not match requested %d", labels.byIndex, dayIndex)
	}

	day.Day = DayNames[dayIndex]
	day.DayIndex = dayIndex
	return day, nil
}

// ValidateMeal checks a single-meal response. Only a non-empty name and a
// known meal_timing are required. The meal may be bare or under "meal".
func ValidateMeal(raw string) (GeneratedMeal, error) {
	text := llm.StripCodeFence(raw)
	if err := CheckStructure(text); err != nil {
		return GeneratedMeal{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return GeneratedMeal{}, reject("invalid JSON: %v", err)
	}
	body := json.RawMessage(text)
	if inner, ok := fields["meal"]; ok {
		body = inner
	}

	var m rawMeal
	if err := json.Unmarshal(body, &m); err != nil {
		return GeneratedMeal{}, reject("invalid meal: %v", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return GeneratedMeal{}, reject("meal has empty name")
	}
	if _, ok := ParseMealTiming(m.MealTiming); !ok {
		return GeneratedMeal{}, reject("meal %q has invalid meal_timing %q", m.Name, m.MealTiming)
	}
	return m.toMeal(), nil
}

// dayLabels is what a day entry says about itself. Either index is -1
// when the entry does not state it.
type dayLabels struct {
	byName  int
	byIndex int
}

// claimed is the day the entry claims to be, preferring the name.
func (l dayLabels) claimed() int {
	if l.byName >= 0 {
		return l.byName
	}
	return l.byIndex
}

// decodeDay applies the per-day and per-meal rules.
func decodeDay(raw json.RawMessage) (DayPlan, dayLabels, error) {
	none := dayLabels{byName: -1, byIndex: -1}
	var d struct {
		Day      string            `json:"day"`
		DayIndex json.RawMessage   `json:"day_index"`
		Meals    []json.RawMessage `json:"meals"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return DayPlan{}, none, reject("invalid day: %v", err)
	}
	if strings.TrimSpace(d.Day) == "" {
		return DayPlan{}, none, reject("day has empty name")
	}
	if len(d.Meals) == 0 {
		return DayPlan{}, none, reject("%s has no meals", d.Day)
	}
	byIndex, err := parseDayIndex(d.DayIndex)
	if err != nil {
		return DayPlan{}, none, fmt.Errorf("%s: %w", d.Day, err)
	}

	day := DayPlan{Day: strings.TrimSpace(d.Day), Meals: make([]GeneratedMeal, 0, len(d.Meals))}
	for j, rawM := range d.Meals {
		meal, err := decodeMeal(rawM)
		if err != nil {
			return DayPlan{}, none, fmt.Errorf("%s meal %d: %w", d.Day, j, err)
		}
		day.Meals = append(day.Meals, meal)
	}

	labels := dayLabels{byName: -1, byIndex: byIndex}
	if i, ok := DayIndex(d.Day); ok {
		labels.byName = i
	}
	return day, labels, nil
}

// parseDayIndex reads day_index as a JSON number or a numeric string. It
// returns -1 when the field is absent, null or not numeric, and rejects
// values that are fractional or outside 0..6.
func parseDayIndex(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return -1, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return -1, nil
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return -1, nil
		}
	}
	if f != math.Trunc(f) {
		return -1, reject("day_index %v is not a whole number", f)
	}
	if f < 0 || f >= float64(len(DayNames)) {
		return -1, reject("day_index %v is out of range", f)
	}
	return int(f), nil
}

func decodeMeal(raw json.RawMessage) (GeneratedMeal, error) {
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return GeneratedMeal{}, reject("meal is not an object")
	}
	name, _ := probe["name"].(string)
	if strings.TrimSpace(name) == "" {
		return GeneratedMeal{}, reject("meal has empty name")
	}
	timing, _ := probe["meal_timing"].(string)
	if _, ok := ParseMealTiming(timing); !ok {
		return GeneratedMeal{}, reject("meal %q has invalid meal_timing %q", name, timing)
	}
	cal, ok := probe["calories"].(float64)
	if !ok {
		return GeneratedMeal{}, reject("meal %q has non-numeric calories", name)
	}
	if cal < 0 || math.IsNaN(cal) {
		return GeneratedMeal{}, reject("meal %q has negative calories", name)
	}

	var m rawMeal
	if err := json.Unmarshal(raw, &m); err != nil {
		return GeneratedMeal{}, reject("meal %q: %v", name, err)
	}
	return m.toMeal(), nil
}

// rawMeal mirrors GeneratedMeal with lenient numeric fields, since models
// often quote numbers or write quantities like "1/2".
type rawMeal struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	MealTiming        string           `json:"meal_timing"`
	DietaryCategory   string           `json:"dietary_category"`
	PrepTimeMinutes   lenientNumber    `json:"prep_time_minutes"`
	DifficultyLevel   lenientNumber    `json:"difficulty_level"`
	Calories          lenientNumber    `json:"calories"`
	ProteinG          lenientNumber    `json:"protein_g"`
	CarbsG            lenientNumber    `json:"carbs_g"`
	FatsG             lenientNumber    `json:"fats_g"`
	FiberG            lenientNumber    `json:"fiber_g"`
	SugarG            lenientNumber    `json:"sugar_g"`
	SodiumMg          lenientNumber    `json:"sodium_mg"`
	Ingredients       []rawIngredient  `json:"ingredients"`
	Instructions      lenientSteps     `json:"instructions"`
	Allergens         lenientStrings   `json:"allergens"`
	ImageURL          string           `json:"image_url"`
	PortionMultiplier lenientNumber    `json:"portion_multiplier"`
	IsOptional        lenientBool      `json:"is_optional"`
}

type rawIngredient struct {
	Name     string        `json:"name"`
	Quantity lenientNumber `json:"quantity"`
	Unit     string        `json:"unit"`
	Category string        `json:"category"`
}

// UnmarshalJSON also accepts a bare string such as "2 eggs".
func (i *rawIngredient) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		*i = rawIngredient{Name: s}
		return nil
	}
	type plain rawIngredient
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = rawIngredient(p)
	return nil
}

type rawInstruction struct {
	Step lenientNumber `json:"step"`
	Text string        `json:"text"`
}

// lenientSteps accepts a list of {step, text} objects, a list of strings or
// a single string. String steps are numbered by position.
type lenientSteps []rawInstruction

func (l *lenientSteps) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		*l = nil
		if strings.TrimSpace(s) != "" {
			*l = lenientSteps{{Text: s}}
		}
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(data, &items) != nil {
		*l = nil
		return nil
	}
	out := make(lenientSteps, 0, len(items))
	for _, item := range items {
		var step rawInstruction
		if json.Unmarshal(item, &s) == nil {
			step.Text = s
		} else if json.Unmarshal(item, &step) != nil {
			continue
		}
		if strings.TrimSpace(step.Text) == "" {
			continue
		}
		out = append(out, step)
	}
	*l = out
	return nil
}

// lenientStrings accepts a list of strings or one comma separated string.
// "none" and empty entries are dropped; non-string list items are skipped.
type lenientStrings []string

func (l *lenientStrings) UnmarshalJSON(data []byte) error {
	var parts []string
	var s string
	if json.Unmarshal(data, &s) == nil {
		parts = strings.Split(s, ",")
	} else {
		var items []json.RawMessage
		if json.Unmarshal(data, &items) != nil {
			*l = nil
			return nil
		}
		for _, item := range items {
			if json.Unmarshal(item, &s) == nil {
				parts = append(parts, s)
			}
		}
	}
	out := lenientStrings{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, "none") {
			continue
		}
		out = append(out, p)
	}
	*l = out
	return nil
}

// lenientBool accepts true/false as JSON booleans or strings. Anything else
// decodes as false.
type lenientBool bool

func (b *lenientBool) UnmarshalJSON(data []byte) error {
	var v bool
	if json.Unmarshal(data, &v) == nil {
		*b = lenientBool(v)
		return nil
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		v, _ = strconv.ParseBool(strings.TrimSpace(s))
	}
	*b = lenientBool(v)
	return nil
}

func (m rawMeal) toMeal() GeneratedMeal {
	timing, _ := ParseMealTiming(m.MealTiming)
	meal := GeneratedMeal{
		Name:              strings.TrimSpace(m.Name),
		Description:       m.Description,
		MealTiming:        timing,
		DietaryCategory:   m.DietaryCategory,
		PrepTimeMinutes:   int(math.Round(float64(m.PrepTimeMinutes))),
		DifficultyLevel:   clamp(int(math.Round(float64(m.DifficultyLevel))), 1, 3),
		Calories:          float64(m.Calories),
		ProteinG:          float64(m.ProteinG),
		CarbsG:            float64(m.CarbsG),
		FatsG:             float64(m.FatsG),
		FiberG:            float64(m.FiberG),
		SugarG:            float64(m.SugarG),
		SodiumMg:          float64(m.SodiumMg),
		Allergens:         []string(m.Allergens),
		ImageURL:          m.ImageURL,
		PortionMultiplier: float64(m.PortionMultiplier),
		IsOptional:        bool(m.IsOptional),
	}
	if meal.PortionMultiplier <= 0 {
		meal.PortionMultiplier = 1
	}
	for _, ing := range m.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			continue
		}
		meal.Ingredients = append(meal.Ingredients, Ingredient{
			Name:     strings.TrimSpace(ing.Name),
			Quantity: float64(ing.Quantity),
			Unit:     strings.TrimSpace(ing.Unit),
			Category: strings.TrimSpace(ing.Category),
		})
	}
	for i, step := range m.Instructions {
		n := int(step.Step)
		if n <= 0 {
			n = i + 1
		}
		meal.Instructions = append(meal.Instructions, Instruction{Step: n, Text: step.Text})
	}
	return meal
}

// lenientNumber accepts JSON numbers, numeric strings and simple fractions.
// Anything else decodes as zero.
type lenientNumber float64

func (n *lenientNumber) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = lenientNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*n = 0
		return nil
	}
	*n = lenientNumber(parseLeadingNumber(s))
	return nil
}

// parseLeadingNumber reads "2", "1.5", "1/2" or "200 g" style quantities.
func parseLeadingNumber(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	tok := fields[0]
	if num, den, ok := strings.Cut(tok, "/"); ok {
		a, errA := strconv.ParseFloat(num, 64)
		b, errB := strconv.ParseFloat(den, 64)
		if errA == nil && errB == nil && b != 0 {
			return a / b
		}
		return 0
	}
	end := 0
	for end < len(tok) && (tok[end] == '.' || (tok[end] >= '0' && tok[end] <= '9')) {
		end++
	}
	f, err := strconv.ParseFloat(tok[:end], 64)
	if err != nil {
		return 0
	}
	return f
}
