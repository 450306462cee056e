package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"weekly-meal-planner/internal/api"
	"weekly-meal-planner/internal/app"
	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/database"
	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/profile"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is everything a command needs, opened once per invocation.
type env struct {
	cfg   *config.Config
	app   *app.App
	close func()
}

func openEnv(ctx context.Context, logLevel string) (*env, error) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize text generator: %w", err)
	}
	if gen == nil {
		logger.Warn("no generative backend configured, plans come from the meal catalog")
	}

	return &env{
		cfg: cfg,
		app: app.NewApp(db, gen, cfg, logger),
		close: func() {
			if c, ok := gen.(llm.Closer); ok {
				c.Close()
			}
			db.Close()
		},
	}, nil
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "meal-planner",
		Short:         "AI-backed weekly meal planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	withEnv := func(run func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, logLevel)
			if err != nil {
				return err
			}
			defer e.close()
			return run(ctx, e, cmd, args)
		}
	}

	cmd.AddCommand(
		profileCmd(withEnv),
		planCmd(withEnv),
		shoppingCmd(withEnv),
		serveCmd(withEnv),
		tokenCmd(withEnv),
		usageCmd(withEnv),
		cleanupCmd(withEnv),
	)
	return cmd
}

type runner func(run func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error

func profileCmd(withEnv runner) *cobra.Command {
	var (
		userID, name                   string
		calories, protein, carbs, fats float64
		diet, exclude, allergies       []string
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create a user and store their goals and dietary answers",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			if err := e.app.EnsureUser(ctx, userID, name); err != nil {
				return err
			}
			if cmd.Flags().Changed("calories") || cmd.Flags().Changed("protein") ||
				cmd.Flags().Changed("carbs") || cmd.Flags().Changed("fats") {
				if _, err := e.app.SetNutritionGoal(ctx, userID, profile.NutritionGoal{
					DailyCalories: calories, DailyProteinG: protein, DailyCarbsG: carbs, DailyFatsG: fats,
				}); err != nil {
					return err
				}
			}
			if len(diet)+len(exclude)+len(allergies) > 0 {
				if _, err := e.app.UpdateQuestionnaire(ctx, userID, profile.Questionnaire{
					DietaryPreferences: diet, ExcludedIngredients: exclude, Allergies: allergies,
				}); err != nil {
					return err
				}
			}
			fmt.Printf("Profile for %s saved.\n", userID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "default_user", "User id")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().Float64Var(&calories, "calories", 0, "Daily calorie target")
	cmd.Flags().Float64Var(&protein, "protein", 0, "Daily protein target (g)")
	cmd.Flags().Float64Var(&carbs, "carbs", 0, "Daily carbs target (g)")
	cmd.Flags().Float64Var(&fats, "fats", 0, "Daily fat target (g)")
	cmd.Flags().StringSliceVar(&diet, "diet", nil, "Dietary preferences")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Ingredients to avoid")
	cmd.Flags().StringSliceVar(&allergies, "allergies", nil, "Allergies")
	return cmd
}

func planCmd(withEnv runner) *cobra.Command {
	cmd := &cobra.Command{Use: "plan", Short: "Create and edit weekly plans"}

	var (
		userID, planID string
		cfg            planner.MealPlanConfig
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Generate a plan for a week",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			if err := e.app.EnsureUser(ctx, userID, ""); err != nil {
				return err
			}
			plan, err := e.app.CreatePlan(ctx, userID, cfg)
			if err != nil {
				return err
			}
			view, err := e.app.GetWeeklyPlan(ctx, userID, plan.ID)
			if err != nil {
				return err
			}
			printPlan(plan, view)
			return nil
		}),
	}
	create.Flags().IntVar(&cfg.MealsPerDay, "meals", 3, "Main meals per day")
	create.Flags().IntVar(&cfg.SnacksPerDay, "snacks", 0, "Snacks per day")
	create.Flags().StringVar(&cfg.WeekStartDate, "week", "", "Week start date (YYYY-MM-DD), defaults to the coming Sunday")
	create.Flags().StringSliceVar(&cfg.DietaryPreferences, "diet", nil, "Dietary preferences for this plan")
	create.Flags().StringSliceVar(&cfg.ExcludedIngredients, "exclude", nil, "Ingredients to avoid in this plan")
	create.Flags().IntVar(&cfg.MaxPrepMinutes, "max-prep", 0, "Maximum prep minutes per meal")

	week := &cobra.Command{
		Use:   "week",
		Short: "Show a plan grouped by day and meal timing",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			plan, err := e.app.GetPlan(ctx, userID, planID)
			if err != nil {
				return err
			}
			view, err := e.app.GetWeeklyPlan(ctx, userID, plan.ID)
			if err != nil {
				return err
			}
			printPlan(plan, view)
			return nil
		}),
	}
	week.Flags().StringVar(&planID, "plan", "", "Plan id, defaults to the active plan")

	var (
		day, timing, note string
		order             int
		exclude           []string
	)
	swap := &cobra.Command{
		Use:   "swap",
		Short: "Replace one meal of a plan",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			dayIndex, ok := planner.DayIndex(day)
			if !ok {
				return fmt.Errorf("unknown day %q", day)
			}
			t, ok := planner.ParseMealTiming(timing)
			if !ok {
				return fmt.Errorf("unknown meal timing %q", timing)
			}
			meal, err := e.app.ReplaceMeal(ctx, userID, planID, dayIndex, t, order, planner.ReplacementPreferences{
				ExcludedIngredients: exclude, Note: note,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s is now %s (%.0f kcal)\n", planner.DayNames[dayIndex], t, meal.Name, meal.Calories)
			return nil
		}),
	}
	swap.Flags().StringVar(&planID, "plan", "", "Plan id, defaults to the active plan")
	swap.Flags().StringVar(&day, "day", "", "Day name (Sunday..Saturday)")
	swap.Flags().StringVar(&timing, "timing", "", "Meal timing, e.g. LUNCH")
	swap.Flags().IntVar(&order, "order", 1, "Meal order within the timing")
	swap.Flags().StringVar(&note, "note", "", "Free-text wish for the new meal")
	swap.Flags().StringSliceVar(&exclude, "exclude", nil, "Ingredients the new meal must avoid")
	_ = swap.MarkFlagRequired("day")
	_ = swap.MarkFlagRequired("timing")

	cmd.PersistentFlags().StringVar(&userID, "user", "default_user", "User id")
	cmd.AddCommand(create, week, swap)
	return cmd
}

func printPlan(plan *planner.Plan, view planner.WeeklyView) {
	fmt.Printf("\n=== WEEKLY MEAL PLAN %s (week of %s) ===\n", plan.ID, plan.WeekStartDate.Format(database.DateLayout))
	for _, day := range planner.DayNames {
		meals, ok := view[day]
		if !ok {
			continue
		}
		fmt.Printf("\n%s\n", day)
		for _, timing := range []planner.MealTiming{
			planner.Breakfast, planner.MorningSnack, planner.Lunch,
			planner.AfternoonSnack, planner.Dinner, planner.EveningSnack,
		} {
			for _, m := range meals[timing] {
				fmt.Printf("  %-16s %s (%.0f kcal)\n", timing, m.Name, m.Calories)
			}
		}
	}
	s := plan.Summary
	fmt.Printf("\nDaily average: %.0f kcal, %.1f g protein, %.1f g carbs, %.1f g fat (adherence %.1f%%)\n",
		s.AvgDailyCalories, s.AvgDailyProtein, s.AvgDailyCarbs, s.AvgDailyFats, s.GoalAdherencePercentage)
	for _, tip := range plan.ShoppingTips {
		fmt.Printf("- %s\n", tip)
	}
}

func shoppingCmd(withEnv runner) *cobra.Command {
	var userID, planID, week string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "shopping",
		Short: "Build the shopping list for a plan",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			var weekStart time.Time
			if week != "" {
				var err error
				if weekStart, err = time.Parse(database.DateLayout, week); err != nil {
					return fmt.Errorf("invalid --week: %w", err)
				}
			}
			list, err := e.app.GenerateShoppingList(ctx, userID, planID, weekStart)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			fmt.Println("\n=== SHOPPING LIST ===")
			for _, group := range list.Categories {
				fmt.Printf("\n%s ($%.2f)\n", group.Category, group.Subtotal)
				for _, item := range group.Items {
					fmt.Printf("- %s: %g %s ($%.2f)\n", item.Name, item.Quantity, item.Unit, item.EstimatedCost)
				}
			}
			fmt.Printf("\nEstimated total: $%.2f\n", list.TotalCost)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "default_user", "User id")
	cmd.Flags().StringVar(&planID, "plan", "", "Plan id, defaults to the active plan")
	cmd.Flags().StringVar(&week, "week", "", "Week start date (YYYY-MM-DD), defaults to the plan's week")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")
	return cmd
}

func serveCmd(withEnv runner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			if err := e.cfg.RequireJWT(); err != nil {
				return err
			}
			tokens := api.NewTokenService(e.cfg.JWTSecret, 24*time.Hour)
			srv := &http.Server{
				Addr:              ":" + e.cfg.Port,
				Handler:           api.NewServer(e.app, tokens, slog.Default()).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("API server listening on port %s", e.cfg.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-quit:
			}
			log.Println("Shutting down server...")

			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctxShutdown); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			log.Println("Server exiting")
			return nil
		}),
	}
}

func tokenCmd(withEnv runner) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for a user",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			if err := e.cfg.RequireJWT(); err != nil {
				return err
			}
			if err := e.app.EnsureUser(ctx, userID, ""); err != nil {
				return err
			}
			token, err := api.NewTokenService(e.cfg.JWTSecret, ttl).Generate(userID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "default_user", "User id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func usageCmd(withEnv runner) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show generation usage per day",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			usage, err := e.app.DailyUsage(ctx, days)
			if err != nil {
				return err
			}
			for _, d := range usage {
				fmt.Printf("%s: %d prompt + %d completion tokens, %d calls (%d not accepted)\n",
					d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution, d.Rejected)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to report")
	return cmd
}

func cleanupCmd(withEnv runner) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old metric records",
		RunE: withEnv(func(ctx context.Context, e *env, _ *cobra.Command, _ []string) error {
			affected, err := e.app.CleanupMetrics(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("Successfully removed %d old metric records.\n", affected)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 30, "Keep records for the last N days")
	return cmd
}
