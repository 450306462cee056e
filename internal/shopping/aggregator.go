package shopping

import (
	"math"
	"sort"
	"strings"
	"time"

	"weekly-meal-planner/internal/planner"
)

const otherCategory = "Other"

// Item is one aggregated ingredient line.
type Item struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	Category      string  `json:"category"`
	EstimatedCost float64 `json:"estimated_cost"`
	IsPurchased   bool    `json:"is_purchased"`
}

// CategoryGroup holds the items of one grocery category.
type CategoryGroup struct {
	Category string  `json:"category"`
	Items    []Item  `json:"items"`
	Subtotal float64 `json:"subtotal"`
}

// List is one shopping list snapshot for a plan and week.
type List struct {
	ID            string          `json:"id"`
	PlanID        string          `json:"plan_id"`
	UserID        string          `json:"user_id"`
	WeekStartDate time.Time       `json:"week_start_date"`
	Categories    []CategoryGroup `json:"categories"`
	TotalCost     float64         `json:"total_cost"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Items returns every item across categories, in display order.
func (l *List) Items() []Item {
	var items []Item
	for _, c := range l.Categories {
		items = append(items, c.Items...)
	}
	return items
}

// Build merges the ingredients of every scheduled meal into a priced list.
// Ingredients are keyed by lower-cased name and quantities are scaled by
// the slot's portion multiplier. The first occurrence of a name decides
// its unit and category; units are not converted between occurrences.
// Items in kg are priced per 100 g, so their quantity counts ten times.
func Build(meals []planner.ScheduledMeal, prices PriceTable, weekStart time.Time) List {
	byName := make(map[string]*Item)

	for _, sm := range meals {
		portion := sm.Entry.PortionMultiplier
		if portion <= 0 {
			portion = 1
		}
		for _, ing := range sm.Template.Ingredients {
			key := normalizeName(ing.Name)
			if key == "" {
				continue
			}
			a, ok := byName[key]
			if !ok {
				category := strings.TrimSpace(ing.Category)
				if category == "" {
					category = otherCategory
				}
				a = &Item{Name: strings.TrimSpace(ing.Name), Unit: strings.TrimSpace(ing.Unit), Category: category}
				byName[key] = a
			}
			a.Quantity += ing.Quantity * portion
		}
	}

	keys := make([]string, 0, len(byName))
	for key := range byName {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make(map[string]*CategoryGroup)
	var total float64
	for _, key := range keys {
		item := *byName[key]
		priced := item.Quantity
		if strings.EqualFold(item.Unit, "kg") {
			priced *= 10
		}
		cost := priced * prices.UnitPrice(key)
		total += cost

		item.Quantity = roundTo(item.Quantity, 100)
		item.EstimatedCost = roundTo(cost, 100)

		g, ok := groups[item.Category]
		if !ok {
			g = &CategoryGroup{Category: item.Category}
			groups[item.Category] = g
		}
		g.Items = append(g.Items, item)
		g.Subtotal += cost
	}

	list := List{WeekStartDate: weekStart, TotalCost: roundTo(total, 100)}
	for _, g := range groups {
		g.Subtotal = roundTo(g.Subtotal, 100)
		list.Categories = append(list.Categories, *g)
	}
	sort.Slice(list.Categories, func(i, j int) bool {
		return list.Categories[i].Category < list.Categories[j].Category
	})
	return list
}

func roundTo(v, scale float64) float64 {
	return math.Round(v*scale) / scale
}
