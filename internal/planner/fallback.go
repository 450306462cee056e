package planner

import (
	"math"
	"strings"
)

// catalogMeal is a fixed recipe used when generation is unavailable or
// degraded. Macros are not stored: they are derived from the profile.
type catalogMeal struct {
	name        string
	description string
	category    string
	prepMinutes int
	difficulty  int
	fiberG      float64
	sugarG      float64
	sodiumMg    float64
	ingredients []Ingredient
	steps       []string
	allergens   []string
}

var catalog = map[MealTiming][]catalogMeal{
	Breakfast: {
		{
			name: "Greek Yogurt Parfait", description: "Layered yogurt with berries and oats.",
			category: "vegetarian", prepMinutes: 5, difficulty: 1, fiberG: 6, sugarG: 18, sodiumMg: 90,
			ingredients: []Ingredient{
				{Name: "Greek yogurt", Quantity: 200, Unit: "g", Category: "Dairy"},
				{Name: "Mixed berries", Quantity: 100, Unit: "g", Category: "Produce"},
				{Name: "Rolled oats", Quantity: 40, Unit: "g", Category: "Grains"},
				{Name: "Honey", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
			},
			steps:     []string{"Spoon half the yogurt into a glass.", "Add oats and berries, then the remaining yogurt.", "Drizzle with honey."},
			allergens: []string{"dairy"},
		},
		{
			name: "Veggie Scrambled Eggs", description: "Soft eggs with spinach and tomato on toast.",
			category: "vegetarian", prepMinutes: 10, difficulty: 1, fiberG: 4, sugarG: 4, sodiumMg: 380,
			ingredients: []Ingredient{
				{Name: "Eggs", Quantity: 3, Unit: "pcs", Category: "Protein"},
				{Name: "Spinach", Quantity: 50, Unit: "g", Category: "Produce"},
				{Name: "Tomato", Quantity: 100, Unit: "g", Category: "Produce"},
				{Name: "Wholegrain bread", Quantity: 2, Unit: "slices", Category: "Grains"},
			},
			steps:     []string{"Wilt the spinach in a pan.", "Add beaten eggs and stir gently until set.", "Serve with sliced tomato and toast."},
			allergens: []string{"eggs", "gluten"},
		},
		{
			name: "Peanut Butter Banana Oatmeal", description: "Warm oats topped with banana and peanut butter.",
			category: "vegan", prepMinutes: 10, difficulty: 1, fiberG: 8, sugarG: 15, sodiumMg: 120,
			ingredients: []Ingredient{
				{Name: "Rolled oats", Quantity: 60, Unit: "g", Category: "Grains"},
				{Name: "Banana", Quantity: 1, Unit: "pcs", Category: "Produce"},
				{Name: "Peanut butter", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
				{Name: "Oat milk", Quantity: 250, Unit: "ml", Category: "Dairy"},
			},
			steps:     []string{"Simmer oats in oat milk for five minutes.", "Top with sliced banana and peanut butter."},
			allergens: []string{"peanuts"},
		},
		{
			name: "Tofu Breakfast Burrito", description: "Spiced tofu scramble with black beans in a tortilla.",
			category: "vegan", prepMinutes: 15, difficulty: 2, fiberG: 9, sugarG: 3, sodiumMg: 520,
			ingredients: []Ingredient{
				{Name: "Firm tofu", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Black beans", Quantity: 80, Unit: "g", Category: "Pantry"},
				{Name: "Flour tortilla", Quantity: 1, Unit: "pcs", Category: "Grains"},
				{Name: "Bell pepper", Quantity: 50, Unit: "g", Category: "Produce"},
			},
			steps:     []string{"Crumble tofu and fry with pepper and spices.", "Warm the beans.", "Fill the tortilla and roll."},
			allergens: []string{"soy", "gluten"},
		},
	},
	Lunch: {
		{
			name: "Grilled Chicken Quinoa Bowl", description: "Chicken, quinoa and roasted vegetables.",
			category: "high-protein", prepMinutes: 25, difficulty: 2, fiberG: 7, sugarG: 5, sodiumMg: 450,
			ingredients: []Ingredient{
				{Name: "Chicken breast", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Quinoa", Quantity: 75, Unit: "g", Category: "Grains"},
				{Name: "Zucchini", Quantity: 100, Unit: "g", Category: "Produce"},
				{Name: "Olive oil", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
			},
			steps:     []string{"Cook the quinoa.", "Grill the chicken and slice.", "Roast zucchini with olive oil and assemble the bowl."},
			allergens: []string{},
		},
		{
			name: "Lentil Vegetable Soup", description: "Hearty red lentil soup with carrots and celery.",
			category: "vegan", prepMinutes: 30, difficulty: 1, fiberG: 12, sugarG: 6, sodiumMg: 600,
			ingredients: []Ingredient{
				{Name: "Red lentils", Quantity: 80, Unit: "g", Category: "Pantry"},
				{Name: "Carrot", Quantity: 100, Unit: "g", Category: "Produce"},
				{Name: "Celery", Quantity: 50, Unit: "g", Category: "Produce"},
				{Name: "Vegetable stock", Quantity: 400, Unit: "ml", Category: "Pantry"},
			},
			steps:     []string{"Soften chopped carrot and celery.", "Add lentils and stock and simmer for 20 minutes.", "Blend partly and season."},
			allergens: []string{"celery"},
		},
		{
			name: "Tuna Salad Wrap", description: "Tuna, crunchy vegetables and yogurt dressing in a wrap.",
			category: "pescatarian", prepMinutes: 10, difficulty: 1, fiberG: 5, sugarG: 4, sodiumMg: 700,
			ingredients: []Ingredient{
				{Name: "Canned tuna", Quantity: 120, Unit: "g", Category: "Protein"},
				{Name: "Flour tortilla", Quantity: 1, Unit: "pcs", Category: "Grains"},
				{Name: "Cucumber", Quantity: 80, Unit: "g", Category: "Produce"},
				{Name: "Greek yogurt", Quantity: 50, Unit: "g", Category: "Dairy"},
			},
			steps:     []string{"Mix tuna with yogurt.", "Add diced cucumber.", "Spread on the tortilla and roll."},
			allergens: []string{"fish", "gluten", "dairy"},
		},
		{
			name: "Chickpea Spinach Salad", description: "Chickpeas, spinach, feta and lemon dressing.",
			category: "vegetarian", prepMinutes: 10, difficulty: 1, fiberG: 10, sugarG: 5, sodiumMg: 480,
			ingredients: []Ingredient{
				{Name: "Chickpeas", Quantity: 150, Unit: "g", Category: "Pantry"},
				{Name: "Spinach", Quantity: 60, Unit: "g", Category: "Produce"},
				{Name: "Feta", Quantity: 40, Unit: "g", Category: "Dairy"},
				{Name: "Lemon", Quantity: 0.5, Unit: "pcs", Category: "Produce"},
			},
			steps:     []string{"Rinse the chickpeas.", "Toss with spinach and crumbled feta.", "Dress with lemon juice."},
			allergens: []string{"dairy"},
		},
	},
	Dinner: {
		{
			name: "Baked Salmon with Sweet Potato", description: "Oven salmon fillet, sweet potato wedges and broccoli.",
			category: "pescatarian", prepMinutes: 35, difficulty: 2, fiberG: 8, sugarG: 9, sodiumMg: 350,
			ingredients: []Ingredient{
				{Name: "Salmon fillet", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Sweet potato", Quantity: 200, Unit: "g", Category: "Produce"},
				{Name: "Broccoli", Quantity: 120, Unit: "g", Category: "Produce"},
				{Name: "Olive oil", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
			},
			steps:     []string{"Roast sweet potato wedges for 15 minutes.", "Add salmon and broccoli to the tray.", "Bake 15 minutes more."},
			allergens: []string{"fish"},
		},
		{
			name: "Turkey Chili", description: "Lean turkey chili with kidney beans and tomatoes.",
			category: "high-protein", prepMinutes: 40, difficulty: 2, fiberG: 11, sugarG: 8, sodiumMg: 650,
			ingredients: []Ingredient{
				{Name: "Ground turkey", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Kidney beans", Quantity: 120, Unit: "g", Category: "Pantry"},
				{Name: "Tomato", Quantity: 200, Unit: "g", Category: "Produce"},
				{Name: "Onion", Quantity: 80, Unit: "g", Category: "Produce"},
			},
			steps:     []string{"Brown the turkey with onion.", "Add tomatoes, beans and spices.", "Simmer for 25 minutes."},
			allergens: []string{},
		},
		{
			name: "Vegetable Stir-Fry with Tofu", description: "Crispy tofu, mixed vegetables and brown rice.",
			category: "vegan", prepMinutes: 25, difficulty: 2, fiberG: 7, sugarG: 7, sodiumMg: 720,
			ingredients: []Ingredient{
				{Name: "Firm tofu", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Brown rice", Quantity: 75, Unit: "g", Category: "Grains"},
				{Name: "Bell pepper", Quantity: 100, Unit: "g", Category: "Produce"},
				{Name: "Soy sauce", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
			},
			steps:     []string{"Cook the rice.", "Fry cubed tofu until crisp.", "Stir-fry vegetables, add tofu and soy sauce."},
			allergens: []string{"soy"},
		},
		{
			name: "Beef and Broccoli Noodles", description: "Sliced beef, broccoli and egg noodles.",
			category: "high-protein", prepMinutes: 25, difficulty: 2, fiberG: 5, sugarG: 6, sodiumMg: 800,
			ingredients: []Ingredient{
				{Name: "Beef sirloin", Quantity: 150, Unit: "g", Category: "Protein"},
				{Name: "Egg noodles", Quantity: 80, Unit: "g", Category: "Grains"},
				{Name: "Broccoli", Quantity: 120, Unit: "g", Category: "Produce"},
				{Name: "Garlic", Quantity: 2, Unit: "cloves", Category: "Produce"},
			},
			steps:     []string{"Boil the noodles.", "Sear beef strips with garlic.", "Add broccoli and noodles and toss."},
			allergens: []string{"gluten", "eggs"},
		},
	},
	MorningSnack: {
		{
			name: "Apple with Almond Butter", description: "Sliced apple with a spoon of almond butter.",
			category: "vegan", prepMinutes: 2, difficulty: 1, fiberG: 5, sugarG: 15, sodiumMg: 40,
			ingredients: []Ingredient{
				{Name: "Apple", Quantity: 1, Unit: "pcs", Category: "Produce"},
				{Name: "Almond butter", Quantity: 1, Unit: "tbsp", Category: "Pantry"},
			},
			steps:     []string{"Slice the apple and serve with almond butter."},
			allergens: []string{"tree nuts"},
		},
		{
			name: "Cottage Cheese and Pineapple", description: "Cottage cheese topped with pineapple chunks.",
			category: "vegetarian", prepMinutes: 2, difficulty: 1, fiberG: 1, sugarG: 12, sodiumMg: 350,
			ingredients: []Ingredient{
				{Name: "Cottage cheese", Quantity: 150, Unit: "g", Category: "Dairy"},
				{Name: "Pineapple", Quantity: 80, Unit: "g", Category: "Produce"},
			},
			steps:     []string{"Top the cottage cheese with pineapple."},
			allergens: []string{"dairy"},
		},
		{
			name: "Carrot Sticks with Hummus", description: "Crunchy carrots with hummus.",
			category: "vegan", prepMinutes: 3, difficulty: 1, fiberG: 6, sugarG: 6, sodiumMg: 250,
			ingredients: []Ingredient{
				{Name: "Carrot", Quantity: 120, Unit: "g", Category: "Produce"},
				{Name: "Hummus", Quantity: 60, Unit: "g", Category: "Pantry"},
			},
			steps:     []string{"Cut carrots into sticks and serve with hummus."},
			allergens: []string{"sesame"},
		},
	},
	AfternoonSnack: {
		{
			name: "Trail Mix", description: "Mixed nuts, seeds and raisins.",
			category: "vegan", prepMinutes: 1, difficulty: 1, fiberG: 4, sugarG: 10, sodiumMg: 60,
			ingredients: []Ingredient{
				{Name: "Mixed nuts", Quantity: 30, Unit: "g", Category: "Pantry"},
				{Name: "Raisins", Quantity: 15, Unit: "g", Category: "Pantry"},
			},
			steps:     []string{"Portion nuts and raisins into a small bowl."},
			allergens: []string{"tree nuts"},
		},
		{
			name: "Protein Smoothie", description: "Banana, milk and protein powder.",
			category: "high-protein", prepMinutes: 5, difficulty: 1, fiberG: 3, sugarG: 20, sodiumMg: 150,
			ingredients: []Ingredient{
				{Name: "Banana", Quantity: 1, Unit: "pcs", Category: "Produce"},
				{Name: "Milk", Quantity: 250, Unit: "ml", Category: "Dairy"},
				{Name: "Protein powder", Quantity: 30, Unit: "g", Category: "Pantry"},
			},
			steps:     []string{"Blend everything until smooth."},
			allergens: []string{"dairy"},
		},
		{
			name: "Rice Cakes with Avocado", description: "Rice cakes topped with smashed avocado.",
			category: "vegan", prepMinutes: 3, difficulty: 1, fiberG: 5, sugarG: 1, sodiumMg: 110,
			ingredients: []Ingredient{
				{Name: "Rice cakes", Quantity: 2, Unit: "pcs", Category: "Grains"},
				{Name: "Avocado", Quantity: 0.5, Unit: "pcs", Category: "Produce"},
			},
			steps:     []string{"Smash the avocado and spread on the rice cakes."},
			allergens: []string{},
		},
	},
	EveningSnack: {
		{
			name: "Warm Chamomile and Walnuts", description: "A handful of walnuts with herbal tea.",
			category: "vegan", prepMinutes: 3, difficulty: 1, fiberG: 2, sugarG: 1, sodiumMg: 5,
			ingredients: []Ingredient{
				{Name: "Walnuts", Quantity: 20, Unit: "g", Category: "Pantry"},
				{Name: "Chamomile tea", Quantity: 1, Unit: "bag", Category: "Pantry"},
			},
			steps:     []string{"Brew the tea and serve with walnuts."},
			allergens: []string{"tree nuts"},
		},
		{
			name: "Casein Yogurt Bowl", description: "Plain yogurt with cinnamon.",
			category: "vegetarian", prepMinutes: 2, difficulty: 1, fiberG: 0, sugarG: 8, sodiumMg: 80,
			ingredients: []Ingredient{
				{Name: "Greek yogurt", Quantity: 150, Unit: "g", Category: "Dairy"},
				{Name: "Cinnamon", Quantity: 1, Unit: "tsp", Category: "Spices"},
			},
			steps:     []string{"Sprinkle cinnamon over the yogurt."},
			allergens: []string{"dairy"},
		},
		{
			name: "Dark Chocolate and Berries", description: "Two squares of dark chocolate with berries.",
			category: "vegetarian", prepMinutes: 1, difficulty: 1, fiberG: 4, sugarG: 10, sodiumMg: 10,
			ingredients: []Ingredient{
				{Name: "Dark chocolate", Quantity: 20, Unit: "g", Category: "Pantry"},
				{Name: "Mixed berries", Quantity: 80, Unit: "g", Category: "Produce"},
			},
			steps:     []string{"Serve chocolate with the berries."},
			allergens: []string{},
		},
	},
}

var (
	fallbackShoppingTips = []string{
		"Buy proteins in family packs and freeze portions.",
		"Shop seasonal produce for better prices.",
	}
	fallbackPrepSuggestions = []string{
		"Cook grains and legumes in batches at the start of the week.",
		"Wash and chop vegetables right after shopping.",
	}
)

// FallbackPlan builds a full week from the catalog.
func FallbackPlan(p UserNutritionProfile) GeneratedMealPlan {
	plan := GeneratedMealPlan{
		WeeklyPlan:          make([]DayPlan, len(DayNames)),
		ShoppingTips:        fallbackShoppingTips,
		MealPrepSuggestions: fallbackPrepSuggestions,
	}
	for i := range DayNames {
		plan.WeeklyPlan[i] = FallbackDay(p, i)
	}
	return plan
}

// FallbackDay builds one day from the catalog. It is a pure function of the
// profile and dayIndex: the catalog entry for each slot is chosen by
// dayIndex modulo the catalog length, and the profile's daily targets are
// split evenly across the day's meals.
func FallbackDay(p UserNutritionProfile, dayIndex int) DayPlan {
	slots := p.SlotTimings()
	n := float64(len(slots))
	day := DayPlan{Day: DayNames[dayIndex], DayIndex: dayIndex, Meals: make([]GeneratedMeal, 0, len(slots))}

	order := make(map[MealTiming]int, len(slots))
	for _, timing := range slots {
		order[timing]++
		options := allowedCatalog(timing, p.ExcludedIngredients, p.Allergies)
		c := options[(dayIndex+order[timing]-1)%len(options)]

		meal := c.toMeal(timing)
		meal.Calories = math.Round(p.Targets.Calories / n)
		meal.ProteinG = round1(p.Targets.ProteinG / n)
		meal.CarbsG = round1(p.Targets.CarbsG / n)
		meal.FatsG = round1(p.Targets.FatsG / n)
		day.Meals = append(day.Meals, meal)
	}
	return day
}

// allowedCatalog filters out entries containing excluded ingredients or
// allergens. If nothing survives, the full list is returned.
func allowedCatalog(timing MealTiming, excluded, allergies []string) []catalogMeal {
	all := catalog[timing]
	var out []catalogMeal
	for _, c := range all {
		if !c.conflicts(excluded, allergies) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

func (c catalogMeal) conflicts(excluded, allergies []string) bool {
	return conflicts(c.ingredients, c.allergens, excluded, allergies)
}

// conflicts reports whether an ingredient name contains an excluded term or
// a declared allergen matches one of the allergies.
func conflicts(ingredients []Ingredient, allergens, excluded, allergies []string) bool {
	for _, ex := range excluded {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == "" {
			continue
		}
		for _, ing := range ingredients {
			if strings.Contains(strings.ToLower(ing.Name), ex) {
				return true
			}
		}
	}
	for _, a := range allergies {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		for _, al := range allergens {
			if strings.EqualFold(al, a) {
				return true
			}
		}
	}
	return false
}

func (c catalogMeal) toMeal(timing MealTiming) GeneratedMeal {
	meal := GeneratedMeal{
		Name:              c.name,
		Description:       c.description,
		MealTiming:        timing,
		DietaryCategory:   c.category,
		PrepTimeMinutes:   c.prepMinutes,
		DifficultyLevel:   c.difficulty,
		FiberG:            c.fiberG,
		SugarG:            c.sugarG,
		SodiumMg:          c.sodiumMg,
		Ingredients:       append([]Ingredient(nil), c.ingredients...),
		Allergens:         append([]string{}, c.allergens...),
		PortionMultiplier: 1,
	}
	for i, s := range c.steps {
		meal.Instructions = append(meal.Instructions, Instruction{Step: i + 1, Text: s})
	}
	return meal
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
