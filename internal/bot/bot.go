// Package bot implements the Telegram registration front-end: owners create,
// list and delete their watchdogs through chat commands. The liveness engine
// never goes through this package; it only shares the store.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/hostutil"
	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
)

// Config tunes the front-end.
type Config struct {
	// BaseURL is the externally reachable push server address, shown to owners
	// of push watchdogs.
	BaseURL string
	// AdminChatID may use the /stats command. Zero disables it.
	AdminChatID int64
	// WatchdogLimit caps how many watchdogs one owner may register.
	WatchdogLimit int
}

// Bot handles registration commands over Telegram long polling.
type Bot struct {
	api   *tgbotapi.BotAPI
	store storage.Storer
	cfg   Config
	log   zerolog.Logger
	wg    sync.WaitGroup
}

// New creates a new Bot.
func New(api *tgbotapi.BotAPI, store storage.Storer, cfg Config, log zerolog.Logger) *Bot {
	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "bot").Logger(),
	}
}

// Start begins consuming updates in a background goroutine.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.log.Info().Str("username", b.api.Self.UserName).Msg("bot started")
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for update := range updates {
			if update.Message == nil {
				continue
			}
			b.handle(update)
		}
	}()
}

// Stop stops receiving updates and waits for the handler loop to drain.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.wg.Wait()
	b.log.Info().Msg("bot stopped")
}

func (b *Bot) handle(upd tgbotapi.Update) {
	msg := strings.TrimSpace(upd.Message.Text)
	chatID := upd.Message.Chat.ID

	switch {
	case strings.HasPrefix(msg, "/start"), strings.HasPrefix(msg, "/help"):
		b.reply(chatID, fmt.Sprintf(`Hello!👋

This bot lets you monitor up to %d hosts. Whenever they go 🔴OFFLINE or 🟢ONLINE I'll send you a notification.

Commands:
- /new push <name>
- /new poll <name> <address>
- /list
- /delete <name>`, b.cfg.WatchdogLimit))

	case strings.HasPrefix(msg, "/new"):
		b.handleNew(chatID, msg)

	case strings.HasPrefix(msg, "/list"):
		b.handleList(chatID)

	case strings.HasPrefix(msg, "/delete"):
		b.handleDelete(chatID, msg)

	case strings.HasPrefix(msg, "/stats"):
		if b.cfg.AdminChatID != 0 && chatID == b.cfg.AdminChatID {
			b.handleStats(chatID)
		}
	}
}

// newCommand is a parsed and validated /new invocation.
type newCommand struct {
	mode    models.Mode
	name    string
	address string
}

// parseNewCommand validates the arguments of a /new message. On failure it
// returns nil and a reply telling the owner what to correct.
func parseNewCommand(msg string) (*newCommand, string) {
	parts := strings.Fields(msg)
	if len(parts) < 3 {
		return nil, "Usage:\n/new push <name>\n/new poll <name> <address>"
	}

	cmd := &newCommand{mode: models.Mode(parts[1]), name: parts[2]}
	if len(cmd.name) > models.MaxNameLength {
		return nil, fmt.Sprintf("❌ Name is too long (max %d characters)", models.MaxNameLength)
	}

	switch cmd.mode {
	case models.ModePush:
	case models.ModePoll:
		if len(parts) < 4 {
			return nil, "Usage: /new poll <name> <address>"
		}
		cmd.address = parts[3]
		if !hostutil.IsValidAddress(cmd.address) {
			return nil, fmt.Sprintf("❌ %s is not a valid address", cmd.address)
		}
	default:
		return nil, "📝 Type must be push or poll"
	}
	return cmd, ""
}

func (b *Bot) handleNew(chatID int64, msg string) {
	cmd, errReply := parseNewCommand(msg)
	if cmd == nil {
		b.reply(chatID, errReply)
		return
	}

	now := time.Now().UTC()
	w := &models.Watchdog{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Name:      cmd.name,
		Mode:      cmd.mode,
		Address:   cmd.address,
		Enabled:   true,
		Online:    true, // assumed reachable until proven otherwise
		LastSeen:  now,
		CreatedAt: now,
	}
	if cmd.mode == models.ModePush {
		w.CheckInterval = models.DefaultCheckInterval
	}

	if err := b.store.CreateWatchdog(context.Background(), w, b.cfg.WatchdogLimit); err != nil {
		switch {
		case errors.Is(err, storage.ErrLimitExceeded):
			b.reply(chatID, fmt.Sprintf("❌ You can't add more than %d watchdogs", b.cfg.WatchdogLimit))
		case errors.Is(err, storage.ErrDuplicateName):
			b.reply(chatID, fmt.Sprintf("❌ You already have a watchdog named %s", w.Name))
		default:
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to create watchdog")
			b.reply(chatID, "Something went wrong, please try again")
		}
		return
	}

	b.log.Debug().Str("watchdog", w.Name).Str("mode", string(w.Mode)).Int64("chat_id", chatID).Msg("created watchdog")
	if w.IsPush() {
		b.reply(chatID, fmt.Sprintf("📄 Created push watchdog %s\n\nMake a POST request to\n%s/update/%s at least every 2 minutes", w.Name, b.cfg.BaseURL, w.ID))
	} else {
		b.reply(chatID, fmt.Sprintf("📄 Created polling watchdog %s (%s)", w.Name, w.Address))
	}
}

func (b *Bot) handleList(chatID int64) {
	watchdogs, err := b.store.ListForOwner(context.Background(), chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to list watchdogs")
		b.reply(chatID, "Something went wrong, please try again")
		return
	}
	if len(watchdogs) == 0 {
		b.reply(chatID, "You don't have any watchdogs yet. Use /new to add one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📄 My watchdogs\n\n")
	for _, w := range watchdogs {
		status := "🟢"
		if !w.Online {
			status = "🔴"
		}
		if w.IsPush() {
			fmt.Fprintf(&sb, "%s %s\n🔄 %s/update/%s\n🕑 Last update: %s\n\n",
				status, w.Name, b.cfg.BaseURL, w.ID, w.LastSeen.Format(time.RFC1123))
		} else {
			fmt.Fprintf(&sb, "%s %s (%s)\n\n", status, w.Name, w.Address)
		}
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleDelete(chatID int64, msg string) {
	parts := strings.Fields(msg)
	if len(parts) < 2 {
		b.reply(chatID, "Usage: /delete <name>")
		return
	}
	name := parts[1]

	err := b.store.DeleteWatchdog(context.Background(), chatID, name)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("You don't have a watchdog named %s", name))
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to delete watchdog")
		b.reply(chatID, "Something went wrong, please try again")
		return
	}
	b.reply(chatID, fmt.Sprintf("🗑️ Deleted watchdog %s", name))
}

func (b *Bot) handleStats(chatID int64) {
	stats, err := b.store.GetStats(context.Background())
	if err != nil {
		b.log.Error().Err(err).Msg("failed to query stats")
		b.reply(chatID, "Something went wrong, please try again")
		return
	}
	b.reply(chatID, fmt.Sprintf("Users: %d\nWatchdogs: %d\nPing watchdogs: %d\nPush watchdogs: %d",
		stats.Users, stats.Watchdogs, stats.PollWatchdogs, stats.PushWatchdogs))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}
