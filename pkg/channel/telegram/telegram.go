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

	"splitrelay/pkg/bus"
	"splitrelay/pkg/channel"
	"splitrelay/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const webhookPath = "/webhook"
const processingNotice = "Processing with AI..."
const messagePreviewLimit = 240

// Adapter bridges Telegram updates into relay inbound/outbound messages.
//
// Delivery is long polling in development and a registered webhook in
// production; the mode is fixed at startup.
type Adapter struct {
	cfg     *config.Config
	mention string
	log     *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg *config.Config, log *slog.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if strings.TrimSpace(cfg.BotName) == "" {
		return nil, errors.New("BOT_NAME is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:     cfg,
		mention: cfg.MentionToken(),
		log:     log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs and outbound messages.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts update delivery and dispatches each update to the handler.
//
// Every update is handled in its own goroutine; near-simultaneous events in
// one chat may complete out of order.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Telegram.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	var updates <-chan telego.Update
	serverErrors := make(chan error, 1)

	if a.cfg.IsProd() {
		updates, err = a.startWebhook(ctx, bot, serverErrors)
		if err != nil {
			return err
		}
		a.log.Info("Telegram channel started", "mode", "webhook", "port", a.cfg.Webhook.Port)
	} else {
		updates, err = bot.UpdatesViaLongPolling(ctx, nil)
		if err != nil {
			return fmt.Errorf("start long polling: %w", err)
		}
		a.log.Info("Telegram channel started", "mode", "polling")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serverErrors:
			return err
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			if update.Message == nil {
				continue
			}

			go a.handleMessage(ctx, bot, handler, *update.Message)
		}
	}
}

// startWebhook registers the webhook with Telegram and serves it on the
// configured port.
//
// Registration must carry the same secret token the update handler validates,
// or Telegram omits the secret header and every update is rejected with 401.
func (a *Adapter) startWebhook(ctx context.Context, bot *telego.Bot, serverErrors chan<- error) (<-chan telego.Update, error) {
	webhookURL := strings.TrimSuffix(strings.TrimSpace(a.cfg.Webhook.BaseURL), "/") + webhookPath
	if err := bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:         webhookURL,
		SecretToken: bot.SecretToken(),
	}); err != nil {
		return nil, fmt.Errorf("register webhook %s: %w", webhookURL, err)
	}

	mux := http.NewServeMux()
	updates, err := bot.UpdatesViaWebhook(ctx, telego.WebhookHTTPServeMux(mux, "POST "+webhookPath, bot.SecretToken()))
	if err != nil {
		return nil, fmt.Errorf("start webhook updates: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.Webhook.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("serve webhook: %w", err)
		}
	}()

	return updates, nil
}

// handleMessage routes one message to the image or text flow.
//
// Images are checked first so that captioned uploads are treated as image
// events.
func (a *Adapter) handleMessage(ctx context.Context, bot *telego.Bot, handler channel.Handler, message telego.Message) {
	if fileID, ok := imageFileID(message); ok {
		a.handleImage(ctx, bot, handler, message, fileID)
		return
	}

	a.handleText(ctx, bot, handler, message)
}

// handleText relays one mention-activated text message.
func (a *Adapter) handleText(ctx context.Context, bot *telego.Bot, handler channel.Handler, message telego.Message) {
	text := message.Text
	if !a.activates(text) {
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	a.log.Info("Received message", "chat_id", chatID, "sender", senderHandle(message), "content", previewText(text))

	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderHandle(message),
		ChatID:   chatID,
		Content:  text,
	}

	a.relay(ctx, bot, handler, message.Chat.ID, inbound, "message")
}

// handleImage resolves the uploaded file to a URL and relays it.
func (a *Adapter) handleImage(ctx context.Context, bot *telego.Bot, handler channel.Handler, message telego.Message, fileID string) {
	chatID := strconv.FormatInt(message.Chat.ID, 10)
	a.log.Info("Received image", "chat_id", chatID, "sender", senderHandle(message), "file_id", fileID)

	noticeID := a.sendNotice(ctx, bot, message.Chat.ID)

	imageURL, err := a.resolveFileURL(ctx, bot, fileID)
	if err != nil {
		a.log.Error("Error processing image", "chat_id", chatID, "error", err)
		a.deleteNotice(ctx, bot, message.Chat.ID, noticeID)
		a.reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Error processing image: %s", err))
		return
	}

	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderHandle(message),
		ChatID:   chatID,
		Content:  "",
		ImageURL: imageURL,
	}

	outbound, err := handler(ctx, inbound)
	a.deleteNotice(ctx, bot, message.Chat.ID, noticeID)
	if err != nil {
		a.log.Error("Error processing image", "chat_id", chatID, "error", err)
		a.reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Error processing image: %s", err))
		return
	}

	a.reply(ctx, bot, message.Chat.ID, outbound.Content)
}

// relay runs the notice / handler / cleanup / final-reply sequence shared by
// the text flow. The notice is always removed before the final reply.
func (a *Adapter) relay(ctx context.Context, bot *telego.Bot, handler channel.Handler, chatID int64, inbound bus.InboundMessage, kind string) {
	noticeID := a.sendNotice(ctx, bot, chatID)

	outbound, err := handler(ctx, inbound)
	a.deleteNotice(ctx, bot, chatID, noticeID)
	if err != nil {
		a.log.Error("Error processing "+kind, "chat_id", inbound.ChatID, "error", err)
		a.reply(ctx, bot, chatID, fmt.Sprintf("Error processing %s: %s", kind, err))
		return
	}

	a.reply(ctx, bot, chatID, outbound.Content)
}

// activates reports whether message text triggers processing.
//
// The mention check is a plain substring test against the literal token, with
// no word-boundary or case handling. Bot commands never activate.
func (a *Adapter) activates(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, "/") {
		return false
	}

	return strings.Contains(text, a.mention)
}

// sendNotice posts the transient processing message and returns its id, or 0
// when sending failed.
func (a *Adapter) sendNotice(ctx context.Context, bot *telego.Bot, chatID int64) int {
	notice, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), processingNotice))
	if err != nil {
		a.log.Error("Failed to send processing notice", "chat_id", chatID, "error", err)
		return 0
	}

	return notice.MessageID
}

// deleteNotice removes the processing message. Removal happens on every path,
// success or failure, before the final reply.
func (a *Adapter) deleteNotice(ctx context.Context, bot *telego.Bot, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}

	if err := bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		a.log.Warn("Failed to delete processing notice", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) reply(ctx context.Context, bot *telego.Bot, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		// Telegram rejects empty messages.
		a.log.Debug("Skipping empty reply", "chat_id", chatID)
		return
	}

	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

// resolveFileURL turns a Telegram file reference into a retrievable URL.
func (a *Adapter) resolveFileURL(ctx context.Context, bot *telego.Bot, fileID string) (string, error) {
	a.log.Info("Fetching file path", "file_id", fileID)

	file, err := bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", errors.New("file path is empty - cannot construct image URL")
	}

	return bot.FileDownloadURL(file.FilePath), nil
}

// imageFileID extracts the file reference for photo or image-document
// messages. Photos offer multiple sizes; the last is the largest.
func imageFileID(message telego.Message) (string, bool) {
	if len(message.Photo) > 0 {
		return message.Photo[len(message.Photo)-1].FileID, true
	}

	if message.Document != nil && strings.HasPrefix(message.Document.MimeType, "image/") {
		return message.Document.FileID, true
	}

	return "", false
}

// senderHandle extracts the author's username, empty when unavailable.
func senderHandle(message telego.Message) string {
	if message.From == nil {
		return ""
	}

	return message.From.Username
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
