package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"signal-servicev1/internal/model"
)

const pollTimeoutSec = 30

// Registry is the subscriber operations the bot needs.
type Registry interface {
	Subscribe(chatID int64, username string) (bool, error)
	Unsubscribe(chatID int64) (bool, error)
	Count() (int, error)
}

// SignalSource exposes the live signal state for the /status and /stats
// commands.
type SignalSource interface {
	ActiveSignals() []model.Signal
	PerformanceStats(windowDays int) *model.PerformanceStats
}

// BotConfig configures the command loop.
type BotConfig struct {
	AdminChatID int64
	// TOTP secret for admin commands. Empty falls back to a chat-ID-only
	// check.
	TOTPSecret string
	// Days covered by the /stats aggregate.
	StatsWindowDays int
}

// Bot runs the Telegram command loop: subscription management plus
// status/performance queries. Admin commands require the configured admin
// chat and, when a secret is set, a valid TOTP code appended to the command.
type Bot struct {
	telegram *TelegramClient
	registry Registry
	signals  SignalSource
	cfg      BotConfig
	log      *slog.Logger
}

// NewBot wires the command loop. Run must be called to start it.
func NewBot(telegram *TelegramClient, registry Registry, signals SignalSource,
	cfg BotConfig, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		telegram: telegram,
		registry: registry,
		signals:  signals,
		cfg:      cfg,
		log:      log.With(slog.String("component", "bot")),
	}
}

// Run long-polls getUpdates until ctx is cancelled. Blocks; run in a
// goroutine.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := b.telegram.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("getUpdates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || !strings.HasPrefix(u.Message.Text, "/") {
				continue
			}
			b.handleCommand(ctx, u)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, u Update) {
	chatID := u.Message.Chat.ID
	fields := strings.Fields(u.Message.Text)
	cmd := strings.ToLower(fields[0])
	// Commands in groups arrive as /cmd@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	var reply string
	switch cmd {
	case "/start":
		reply = b.cmdStart(chatID, u.Message.From.Username)
	case "/stop":
		reply = b.cmdStop(chatID)
	case "/status":
		reply = FormatActive(b.signals.ActiveSignals())
	case "/stats":
		reply = b.cmdStats(chatID, fields)
	case "/help":
		reply = escapeMarkdown("Commands:\n/start - subscribe to signals\n/stop - unsubscribe\n/status - open signals\n/stats - performance (admin)")
	default:
		return
	}

	if err := b.telegram.SendMessage(ctx, chatID, reply); err != nil {
		b.log.Warn("command reply failed",
			slog.String("command", cmd),
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
	}
}

func (b *Bot) cmdStart(chatID int64, username string) string {
	added, err := b.registry.Subscribe(chatID, username)
	if err != nil {
		b.log.Error("subscribe failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return escapeMarkdown("Something went wrong, try again later.")
	}
	if !added {
		return escapeMarkdown("You are already subscribed.")
	}
	return escapeMarkdown("Subscribed. You will receive trading signals as they are generated.\nUse /stop to unsubscribe.")
}

func (b *Bot) cmdStop(chatID int64) string {
	removed, err := b.registry.Unsubscribe(chatID)
	if err != nil {
		b.log.Error("unsubscribe failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return escapeMarkdown("Something went wrong, try again later.")
	}
	if !removed {
		return escapeMarkdown("You were not subscribed.")
	}
	return escapeMarkdown("Unsubscribed. Use /start to subscribe again.")
}

// cmdStats is admin-only: the chat must match the configured admin and,
// when a TOTP secret is set, the command must carry a valid code
// ("/stats 123456").
func (b *Bot) cmdStats(chatID int64, fields []string) string {
	if !b.authorizeAdmin(chatID, fields) {
		return escapeMarkdown("Not authorized.")
	}

	stats := b.signals.PerformanceStats(b.cfg.StatsWindowDays)
	subs, err := b.registry.Count()
	if err != nil {
		b.log.Warn("subscriber count failed", slog.String("error", err.Error()))
	}

	text := FormatStats(stats, b.cfg.StatsWindowDays)
	return text + "\n\n" + escapeMarkdown(fmt.Sprintf("Active subscribers: %d", subs))
}

func (b *Bot) authorizeAdmin(chatID int64, fields []string) bool {
	if chatID != b.cfg.AdminChatID {
		return false
	}
	if b.cfg.TOTPSecret == "" {
		return true
	}
	if len(fields) < 2 {
		return false
	}
	return totp.Validate(fields[1], b.cfg.TOTPSecret)
}
