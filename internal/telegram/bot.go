package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cookidoo-planner/internal/app"
	"cookidoo-planner/internal/config"
	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/slots"
)

const helpText = `🧑‍🍳 *Meal planner*

/plan - show the current plan
/generate - plan the week
/reroll <day> <slot> - pick another recipe
/on <day> <slot|lunch|dinner> - activate a slot
/off <day> <slot|lunch|dinner> - deactivate a slot
/exclude <ingredient> - never use an ingredient
/prefer <ingredient> - prefer an ingredient
/filters - show the active filters
/logout - clear the plan`

// Bot wraps the Telegram API and the planner app.
type Bot struct {
	api    *tgbotapi.BotAPI
	app    *app.App
	cfg    *config.Config
	logger *slog.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("telegram authorized", "account", bot.Self.UserName)

	if webhookURL := cfg.TelegramWebhookURL; webhookURL != "" {
		wh, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
		}
		resp, err := bot.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
		}
		logger.Info("webhook set", "description", resp.Description)
	}

	return &Bot{api: bot, app: a, cfg: cfg, logger: logger}, nil
}

// WebhookHandler receives updates pushed by Telegram.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return b.handleWebhook
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.From == nil {
		return
	}
	if !b.cfg.IsAllowed(update.Message.From.ID) {
		b.logger.Warn("unauthorized access attempt", "telegram_user", update.Message.From.ID, "username", update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd, _ := parseCommand(msg.Text)
	if cmd != "generate" && cmd != "reroll" {
		b.send(msg.Chat.ID, b.handleCommand(ctx, msg.From.ID, msg.Text))
		return
	}

	// Slow commands get a placeholder that is edited once the backend answers.
	status := tgbotapi.NewMessage(msg.Chat.ID, "🧑‍🍳 *Thinking...*")
	status.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(status)
	if err != nil {
		b.logger.Warn("failed to send initial reply", "error", err)
		return
	}
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, sent.MessageID, b.handleCommand(ctx, msg.From.ID, msg.Text))
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit reply", "error", err)
	}
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send reply", "error", err)
	}
}

func userKey(telegramID int64) string {
	return "tg-" + strconv.FormatInt(telegramID, 10)
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments. Plain
// text is not a command.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(cmd), fields[1:]
}

// handleCommand runs one command for a Telegram user and returns the reply.
func (b *Bot) handleCommand(ctx context.Context, from int64, text string) string {
	cmd, args := parseCommand(text)
	if cmd == "" || cmd == "start" || cmd == "help" {
		return helpText
	}
	if cmd == "metrics" {
		if !b.isAdmin(from) {
			return "⛔ *Access Denied*: Admin only."
		}
		return b.metricsReport(ctx)
	}
	if cmd == "logout" {
		b.app.Logout(userKey(from))
		return "👋 Plan cleared. Your settings are kept."
	}

	ctrl, err := b.app.Planner(ctx, userKey(from))
	if err != nil {
		return errorText(err)
	}

	switch cmd {
	case "plan":
		return formatPlanMarkdown(ctrl.View())
	case "generate":
		err = ctrl.Generate(ctx)
	case "reroll":
		var (
			day  slots.Day
			slot slots.SlotKey
		)
		if day, slot, err = daySlotArgs(args); err == nil {
			err = ctrl.Reroll(ctx, day, slot)
		}
	case "on", "off":
		err = b.toggle(ctx, ctrl, args, cmd == "on")
	case "exclude", "prefer":
		if len(args) == 0 {
			return fmt.Sprintf("Usage: /%s <ingredient>", cmd)
		}
		var added bool
		if added, err = ctrl.AddIngredient(ctx, filters.Kind(cmd), strings.Join(args, " ")); err == nil && !added {
			return "Already on the list."
		}
		if err == nil {
			return formatFilters(ctrl.View())
		}
	case "filters":
		return formatFilters(ctrl.View())
	default:
		return "Unknown command. Send /help."
	}

	if err != nil {
		return errorText(err)
	}
	return formatPlanMarkdown(ctrl.View())
}

func (b *Bot) toggle(ctx context.Context, ctrl *planner.Controller, args []string, on bool) error {
	if len(args) != 2 {
		return shared.Invalid("arguments", "expected <day> <slot>")
	}
	day, err := slots.ParseDay(args[0])
	if err != nil {
		return err
	}
	if group, err := slots.ParseGroup(args[1]); err == nil {
		return ctrl.SetMain(ctx, day, group, on)
	}
	slot, err := slots.ParseSlot(args[1])
	if err != nil {
		return err
	}
	return ctrl.SetSlot(ctx, day, slot, on)
}

func daySlotArgs(args []string) (slots.Day, slots.SlotKey, error) {
	if len(args) != 2 {
		return 0, "", shared.Invalid("arguments", "expected <day> <slot>")
	}
	day, err := slots.ParseDay(args[0])
	if err != nil {
		return 0, "", err
	}
	slot, err := slots.ParseSlot(args[1])
	return day, slot, err
}

func (b *Bot) isAdmin(id int64) bool {
	return len(b.cfg.TelegramAllowUserIDs) > 0 && b.cfg.TelegramAllowUserIDs[0] == id
}

func errorText(err error) string {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		return "⚠️ " + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, verr.Error())
	case errors.Is(err, shared.ErrPlanCleared):
		return "👋 Your plan was cleared while generating. Send /generate again."
	case shared.IsBackendFailure(err):
		return "❌ *The recipe service failed.* Your plan is unchanged, try again later."
	}
	return "❌ Something went wrong."
}

func slotLabel(k slots.SlotKey) string {
	g := string(k.Group())
	return strings.ToUpper(g[:1]) + g[1:] + " " + k.Kind()
}

func formatPlanMarkdown(v planner.View) string {
	var pb strings.Builder
	pb.WriteString("📅 *Weekly Meal Plan*\n\n")
	if !v.Generated {
		pb.WriteString("_No plan yet. Send /generate._\n")
	}

	for _, d := range v.Days {
		if d.State == planner.Unconfigured {
			continue
		}
		pb.WriteString(fmt.Sprintf("*%s*\n", d.Name))
		for _, k := range d.Active {
			r, ok := d.Entries[k]
			switch {
			case ok:
				pb.WriteString(fmt.Sprintf("• %s: %s (%s)\n", slotLabel(k), tgbotapi.EscapeText(tgbotapi.ModeMarkdown, r.Name), r.TotalTimeString()))
			case v.Generated:
				pb.WriteString(fmt.Sprintf("• %s: _nothing found_\n", slotLabel(k)))
			default:
				pb.WriteString(fmt.Sprintf("• %s\n", slotLabel(k)))
			}
		}
		pb.WriteString("\n")
	}
	return pb.String()
}

func formatFilters(v planner.View) string {
	f := v.Filters
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔎 *Filters* (%d active)\n\n", v.Badge))
	list := func(label string, items []string) {
		if len(items) == 0 {
			items = []string{"-"}
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", label, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, strings.Join(items, ", "))))
	}
	list("Categories", f.Categories)
	list("Cuisines", f.Cuisines)
	minutes := func(p *int) string {
		if p == nil {
			return "no limit"
		}
		return fmt.Sprintf("%d Min.", *p)
	}
	sb.WriteString(fmt.Sprintf("• Max time: lunch %s, dinner %s\n", minutes(f.MaxTimeLunch), minutes(f.MaxTimeDinner)))
	sb.WriteString(fmt.Sprintf("• Own collection: %d%%\n", f.Ratio))
	list("Exclude", f.Exclude)
	list("Prefer", f.Prefer)
	return sb.String()
}

func (b *Bot) metricsReport(ctx context.Context) string {
	usage, err := b.app.Usage(ctx, 7)
	if err != nil {
		b.logger.Warn("failed to fetch metrics", "error", err)
		return "❌ Error fetching metrics."
	}
	return formatMetrics(usage, b.app.Health())
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Backend Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d calls, %d failed, %d tokens, %dms avg\n",
			d.Date, d.Calls, d.Failures, d.TotalPrompt+d.TotalCompletion, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	if health.DataDiskSize != "" {
		sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	}
	return sb.String()
}
