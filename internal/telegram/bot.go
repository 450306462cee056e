package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"weekly-meal-planner/internal/app"
	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/metrics"
	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Service is the part of app.App the bot drives.
type Service interface {
	EnsureUser(ctx context.Context, userID, displayName string) error
	CreatePlan(ctx context.Context, userID string, cfg planner.MealPlanConfig) (*planner.Plan, error)
	GetPlan(ctx context.Context, userID, planID string) (*planner.Plan, error)
	GetWeeklyPlan(ctx context.Context, userID, planID string) (planner.WeeklyView, error)
	ReplaceMeal(ctx context.Context, userID, planID string, dayOfWeek int, timing planner.MealTiming, mealOrder int, prefs planner.ReplacementPreferences) (*planner.MealTemplate, error)
	GenerateShoppingList(ctx context.Context, userID, planID string, weekStart time.Time) (*shopping.List, error)
	DailyUsage(ctx context.Context, days int) ([]metrics.DailyUsage, error)
}

// sender is the subset of *tgbotapi.BotAPI used to talk back to chats.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the planning service.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     sender
	svc     Service
	cfg     *config.Config
	now     func() time.Time
	timeout time.Duration
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, svc Service) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	b := newBot(bot, cfg, svc)
	b.api = bot
	return b, nil
}

func newBot(out sender, cfg *config.Config, svc Service) *Bot {
	return &Bot{
		out:     out,
		svc:     svc,
		cfg:     cfg,
		now:     time.Now,
		timeout: 2 * time.Minute,
	}
}

// RegisterHandlers registers the webhook handler on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.CallbackQuery != nil {
		if !b.isAllowed(update.CallbackQuery.From.ID) {
			return
		}
		go b.handleCallbackQuery(update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !b.isAllowed(update.Message.From.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) isAllowed(id int64) bool {
	for _, allowed := range b.cfg.TelegramAllowedUserIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	userID := strconv.FormatInt(msg.From.ID, 10)
	if err := b.svc.EnsureUser(ctx, userID, msg.From.FirstName); err != nil {
		log.Printf("Failed to register user %s: %v", userID, err)
		b.reply(msg.Chat.ID, "❌ Something went wrong, please try again later.")
		return
	}

	switch msg.Command() {
	case "plan":
		b.handlePlanCommand(ctx, userID, msg)
	case "week":
		b.handleWeekCommand(ctx, userID, msg.Chat.ID)
	case "swap":
		b.handleSwapCommand(ctx, userID, msg)
	case "shopping":
		b.handleShoppingCommand(ctx, userID, msg.Chat.ID)
	case "metrics":
		b.handleMetricsCommand(ctx, msg)
	default:
		b.reply(msg.Chat.ID, helpText)
	}
}

const helpText = "🥗 *Weekly Meal Planner*\n\n" +
	"/plan `[meals] [snacks]` create a plan for the coming week (default 3 meals, 0 snacks)\n" +
	"/week show the current plan\n" +
	"/swap `<day> <timing> [order]` replace one meal, e.g. `/swap tuesday lunch`\n" +
	"/shopping build the shopping list"

// parsePlanArgs reads "[meals] [snacks]".
func parsePlanArgs(args string) (planner.MealPlanConfig, error) {
	cfg := planner.MealPlanConfig{MealsPerDay: 3}
	fields := strings.Fields(args)
	if len(fields) > 2 {
		return cfg, fmt.Errorf("expected at most two numbers")
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return cfg, fmt.Errorf("%q is not a number", f)
		}
		if i == 0 {
			cfg.MealsPerDay = n
		} else {
			cfg.SnacksPerDay = n
		}
	}
	return cfg, nil
}

func (b *Bot) handlePlanCommand(ctx context.Context, userID string, msg *tgbotapi.Message) {
	cfg, err := parsePlanArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg.Chat.ID, fmt.Sprintf("❌ %s\n\n%s", err, helpText))
		return
	}

	week := app.ComingSunday(b.now())
	if active, err := b.svc.GetPlan(ctx, userID, ""); err == nil && active.WeekStartDate.Equal(week) {
		// Ask user what to do; callback data is limited to 64 bytes.
		promptText := fmt.Sprintf("🗓️ A plan already exists for the week starting *%s*.\nWhat would you like to do?",
			week.Format("2006-01-02"))
		args := fmt.Sprintf("%d|%d", cfg.MealsPerDay, cfg.SnacksPerDay)
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔄 Redo This Week", "redo|"+args),
				tgbotapi.NewInlineKeyboardButtonData("⏭️ Plan Following Week", "next|"+args),
			),
		)
		m := tgbotapi.NewMessage(msg.Chat.ID, promptText)
		m.ParseMode = tgbotapi.ModeMarkdown
		m.ReplyMarkup = keyboard
		b.send(m)
		return
	}

	sent, err := b.status(msg.Chat.ID)
	if err != nil {
		return
	}
	b.generateAndSendPlan(ctx, userID, msg.Chat.ID, sent.MessageID, cfg, week)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	userID := strconv.FormatInt(query.From.ID, 10)
	parts := strings.Split(query.Data, "|")
	if len(parts) != 3 || query.Message == nil {
		return
	}
	cfg, err := parsePlanArgs(parts[1] + " " + parts[2])
	if err != nil {
		return
	}

	week := app.ComingSunday(b.now())
	if parts[0] == "next" {
		week = week.AddDate(0, 0, 7)
	}

	// Answer callback to remove spinner
	if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	chatID := query.Message.Chat.ID
	b.edit(chatID, query.Message.MessageID, thinkingText)
	b.generateAndSendPlan(ctx, userID, chatID, query.Message.MessageID, cfg, week)
}

const thinkingText = "🧑‍🍳 *Thinking...* \n(Generating your weekly plan)"

func (b *Bot) generateAndSendPlan(ctx context.Context, userID string, chatID int64, messageID int, cfg planner.MealPlanConfig, week time.Time) {
	cfg.WeekStartDate = week.Format("2006-01-02")
	plan, err := b.svc.CreatePlan(ctx, userID, cfg)
	if err != nil {
		b.edit(chatID, messageID, errorText("generating plan", err))
		return
	}

	view, err := b.svc.GetWeeklyPlan(ctx, userID, plan.ID)
	if err != nil {
		b.edit(chatID, messageID, errorText("loading plan", err))
		return
	}
	b.edit(chatID, messageID, formatPlanMarkdown(plan, view))
}

func (b *Bot) handleWeekCommand(ctx context.Context, userID string, chatID int64) {
	plan, err := b.svc.GetPlan(ctx, userID, "")
	if err != nil {
		b.reply(chatID, errorText("loading plan", err))
		return
	}
	view, err := b.svc.GetWeeklyPlan(ctx, userID, plan.ID)
	if err != nil {
		b.reply(chatID, errorText("loading plan", err))
		return
	}
	b.reply(chatID, formatPlanMarkdown(plan, view))
}

// parseSwapArgs reads "<day> <timing> [order]". Days are names or 0-6.
func parseSwapArgs(args string) (day int, timing planner.MealTiming, order int, err error) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		return 0, "", 0, fmt.Errorf("usage: /swap <day> <timing> [order]")
	}

	day, ok := planner.DayIndex(fields[0])
	if !ok {
		n, convErr := strconv.Atoi(fields[0])
		if convErr != nil || n < 0 || n > 6 {
			return 0, "", 0, fmt.Errorf("unknown day %q", fields[0])
		}
		day = n
	}

	timing, ok = planner.ParseMealTiming(fields[1])
	if !ok {
		return 0, "", 0, fmt.Errorf("unknown meal timing %q", fields[1])
	}

	order = 1
	if len(fields) == 3 {
		order, err = strconv.Atoi(fields[2])
		if err != nil || order < 1 {
			return 0, "", 0, fmt.Errorf("meal order must be a positive number")
		}
	}
	return day, timing, order, nil
}

func (b *Bot) handleSwapCommand(ctx context.Context, userID string, msg *tgbotapi.Message) {
	day, timing, order, err := parseSwapArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg.Chat.ID, "❌ "+err.Error())
		return
	}

	sent, err := b.status(msg.Chat.ID)
	if err != nil {
		return
	}
	meal, err := b.svc.ReplaceMeal(ctx, userID, "", day, timing, order, planner.ReplacementPreferences{})
	if err != nil {
		b.edit(msg.Chat.ID, sent.MessageID, errorText("swapping meal", err))
		return
	}
	b.edit(msg.Chat.ID, sent.MessageID, fmt.Sprintf("✅ *%s %s* is now:\n%s",
		planner.DayNames[day], timingLabel(timing), formatMealLine(*meal)))
}

func (b *Bot) handleShoppingCommand(ctx context.Context, userID string, chatID int64) {
	list, err := b.svc.GenerateShoppingList(ctx, userID, "", time.Time{})
	if err != nil {
		b.reply(chatID, errorText("building shopping list", err))
		return
	}
	b.reply(chatID, formatShoppingMarkdown(list))
}

func (b *Bot) handleMetricsCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	usage, err := b.svc.DailyUsage(ctx, 7)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 *Generation Report*\n\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d calls, %d rejected)\n",
			d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.Rejected)
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) status(chatID int64) (tgbotapi.Message, error) {
	m := tgbotapi.NewMessage(chatID, thinkingText)
	m.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.out.Send(m)
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
	}
	return sent, err
}

func (b *Bot) reply(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	b.send(m)
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	e := tgbotapi.NewEditMessageText(chatID, messageID, text)
	e.ParseMode = tgbotapi.ModeMarkdown
	b.send(e)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.out.Send(c); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func errorText(action string, err error) string {
	switch {
	case errors.Is(err, app.ErrPlanNotFound):
		return "🗓️ You have no plan yet. Send /plan to create one."
	case errors.Is(err, app.ErrScheduleEntryNotFound):
		return "🤷 That meal is not part of your plan. Check /week for the slots you have."
	case errors.Is(err, app.ErrInvalidConfig):
		return "❌ " + escape(err.Error())
	}
	log.Printf("Error %s: %v", action, err)
	return fmt.Sprintf("❌ *Error %s.* Please try again later.", action)
}
