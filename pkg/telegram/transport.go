// Package telegram adapts the Telegram Bot API to the router's
// transport interfaces. It long-polls for updates, fans them out to a
// bounded set of handler goroutines, and implements reply sending and
// file downloads.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/txn2/printerbot/pkg/bot"
)

// DefaultPollTimeout is the long-poll timeout in seconds.
const DefaultPollTimeout = 30

// downloadTimeout bounds a single file download.
const downloadTimeout = 2 * time.Minute

// Handler consumes mapped chat updates.
type Handler interface {
	Handle(ctx context.Context, u bot.Update)
}

// Config configures a Transport.
type Config struct {
	// Token is the bot API token.
	Token string

	// MaxConcurrent bounds how many updates are handled at once.
	MaxConcurrent int

	// PollTimeout is the long-poll timeout in seconds. Defaults to
	// DefaultPollTimeout.
	PollTimeout int

	Logger *slog.Logger
}

// Transport is the Telegram side of the bot. It owns the update loop
// and implements bot.Replier and bot.Downloader.
type Transport struct {
	api         *tgbotapi.BotAPI
	maxHandlers int
	pollTimeout int
	client      *http.Client
	log         *slog.Logger
}

var (
	_ bot.Replier    = (*Transport)(nil)
	_ bot.Downloader = (*Transport)(nil)
)

// New connects to the Telegram API and verifies the token.
func New(cfg Config) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Logger.Info("telegram bot connected", "username", api.Self.UserName)
	return &Transport{
		api:         api,
		maxHandlers: cfg.MaxConcurrent,
		pollTimeout: cfg.PollTimeout,
		client:      &http.Client{Timeout: downloadTimeout},
		log:         cfg.Logger,
	}, nil
}

// Run polls for updates and dispatches them to handler until ctx is
// cancelled. In-flight handlers finish before Run returns.
func (t *Transport) Run(ctx context.Context, handler Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	// Semaphore bounding concurrent handlers.
	sem := make(chan struct{}, t.maxHandlers)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			wg.Wait()
			return ctx.Err()
		case raw, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			upd, ok := mapUpdate(raw)
			if !ok {
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				handler.Handle(ctx, upd)
			}()
		}
	}
}

// Reply sends a plain-text message to the chat.
func (t *Transport) Reply(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}
	return nil
}

// Download fetches the referenced file to dst.
func (t *Transport) Download(ctx context.Context, ref bot.FileRef, dst string) error {
	url, err := t.api.GetFileDirectURL(ref.ID)
	if err != nil {
		return fmt.Errorf("resolving file %s: %w", ref.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading file %s: %w", ref.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading file %s: unexpected status %s", ref.ID, resp.Status)
	}

	// #nosec G304 -- dst is a spool path built by the caller
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}

// mapUpdate converts a raw Telegram update to the router's shape.
// Updates without a message (edits, channel posts) are dropped.
func mapUpdate(raw tgbotapi.Update) (bot.Update, bool) {
	msg := raw.Message
	if msg == nil {
		return bot.Update{}, false
	}

	u := bot.Update{
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}
	if msg.From != nil {
		u.Username = msg.From.UserName
	}
	if msg.IsCommand() {
		u.Command = msg.Command()
		u.Args = msg.CommandArguments()
		u.Text = ""
	}

	switch {
	case msg.Document != nil:
		u.File = &bot.FileRef{
			ID:   msg.Document.FileID,
			Name: msg.Document.FileName,
			Size: int64(msg.Document.FileSize),
		}
	case len(msg.Photo) > 0:
		// Telegram sends several resolutions; print the largest.
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > best.FileSize {
				best = p
			}
		}
		u.File = &bot.FileRef{
			ID:   best.FileID,
			Name: fmt.Sprintf("photo_%s.jpg", best.FileUniqueID),
			Size: int64(best.FileSize),
		}
	}

	return u, true
}
