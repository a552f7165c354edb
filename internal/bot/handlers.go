package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gratefultolord/art_suggest_bot/internal/db"
	"github.com/gratefultolord/art_suggest_bot/internal/metrics"
	"github.com/gratefultolord/art_suggest_bot/internal/moderation"
	"github.com/gratefultolord/art_suggest_bot/internal/notify"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Moderation interface {
	Register(ctx context.Context, userID int64, displayName string) (*db.User, bool, error)
	Profile(ctx context.Context, userID int64) (*db.User, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	CanSubmit(ctx context.Context, userID int64) error
	Submit(ctx context.Context, submitterID int64, imageRef, caption string) (int64, error)
	ApplyAction(ctx context.Context, actorID int64, action moderation.Action) error
	Suggestion(ctx context.Context, actorID, suggestionID int64) (*db.Suggestion, error)
	Broadcast(ctx context.Context, senderID int64, content string) (notify.Report, error)
}

type Sessions interface {
	Get(ctx context.Context, userID int64) (*db.Session, error)
	Set(ctx context.Context, userID int64, state db.SessionState) error
}

type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

type BotService struct {
	botAPI   API
	service  Moderation
	sessions Sessions
	limiter  Limiter
	log      zerolog.Logger
}

func New(botAPI API, service Moderation, sessions Sessions, limiter Limiter, logger zerolog.Logger) *BotService {
	return &BotService{
		botAPI:   botAPI,
		service:  service,
		sessions: sessions,
		limiter:  limiter,
		log:      logger,
	}
}

// Start long-polls Telegram and handles updates one at a time until ctx is
// cancelled.
func (b *BotService) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.botAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				return
			}

			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update. A failure, even a panic, only
// affects this update.
func (b *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := b.log.With().
		Int("update_id", update.UpdateID).
		Str("trace_id", uuid.NewString()).
		Logger()
	ctx = log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		metrics.RecordUpdate("callback")
		b.handleCallback(ctx, update.CallbackQuery)

	case update.Message != nil && update.Message.From != nil:
		metrics.RecordUpdate("message")
		b.handleMessage(ctx, update.Message)

	default:
		metrics.RecordUpdate("ignored")
	}
}

func (b *BotService) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			b.handleStart(ctx, chatID, userID)
		case "suggest":
			b.handleSuggestCommand(ctx, chatID, userID)
		case "cancel":
			b.setState(ctx, userID, db.SessionIdle)
			b.reply(ctx, chatID, "Действие отменено.")
		case "broadcast":
			b.handleBroadcastCommand(ctx, chatID, userID)
		case "status":
			b.handleStatus(ctx, chatID, userID, message.CommandArguments())
		default:
			b.reply(ctx, chatID, helpText)
		}
		return
	}

	switch b.state(ctx, userID) {
	case db.SessionAwaitingRegistration:
		b.handleRegistration(ctx, chatID, userID, message.Text)

	case db.SessionAwaitingSuggestion:
		b.handleSuggestion(ctx, chatID, userID, message)

	default:
		if body, ok := broadcastBody(message.Text); ok {
			b.handleBroadcast(ctx, chatID, userID, body)
			return
		}

		b.reply(ctx, chatID, helpText)
	}
}

func (b *BotService) handleStart(ctx context.Context, chatID, userID int64) {
	user, err := b.service.Profile(ctx, userID)
	if err == nil {
		b.setState(ctx, userID, db.SessionIdle)
		b.reply(ctx, chatID, fmt.Sprintf("Вы уже зарегистрированы как %s. Используйте /suggest чтобы предложить арт.", user.DisplayName))
		return
	}

	if !errors.Is(err, moderation.ErrNotFound) {
		b.fail(ctx, chatID, "handleStart", err)
		return
	}

	b.setState(ctx, userID, db.SessionAwaitingRegistration)
	b.reply(ctx, chatID, "Привет! Пожалуйста, укажите свой ник:")
}

func (b *BotService) handleRegistration(ctx context.Context, chatID, userID int64, text string) {
	user, created, err := b.service.Register(ctx, userID, text)
	if err != nil {
		if msg := moderation.UserMessage(err); msg != "" {
			b.reply(ctx, chatID, msg)
			return
		}

		b.fail(ctx, chatID, "handleRegistration", err)
		return
	}

	b.setState(ctx, userID, db.SessionIdle)

	if !created {
		b.reply(ctx, chatID, fmt.Sprintf("Вы уже зарегистрированы как %s. Используйте /suggest чтобы предложить арт.", user.DisplayName))
		return
	}

	b.reply(ctx, chatID, "Регистрация завершена! Используйте /suggest чтобы предложить арт.")
}

func (b *BotService) handleSuggestCommand(ctx context.Context, chatID, userID int64) {
	if err := b.service.CanSubmit(ctx, userID); err != nil {
		if msg := moderation.UserMessage(err); msg != "" {
			b.reply(ctx, chatID, msg)
			return
		}

		b.fail(ctx, chatID, "handleSuggestCommand", err)
		return
	}

	b.setState(ctx, userID, db.SessionAwaitingSuggestion)
	b.reply(ctx, chatID, "Пожалуйста, отправьте арт, добавьте персонажей через хэштеги и укажите автора.")
}

func (b *BotService) handleSuggestion(ctx context.Context, chatID, userID int64, message *tgbotapi.Message) {
	fileID := largestPhoto(message)
	if fileID == "" {
		b.reply(ctx, chatID, "Пожалуйста, отправьте арт изображением с подписью. /cancel - отмена.")
		return
	}

	ok, err := b.limiter.Allow(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("rate limiter unavailable")
	}

	if !ok {
		b.setState(ctx, userID, db.SessionIdle)
		b.reply(ctx, chatID, "Слишком много предложений. Попробуйте позже.")
		return
	}

	id, err := b.service.Submit(ctx, userID, fileID, message.Caption)
	switch {
	case err == nil:
		b.setState(ctx, userID, db.SessionIdle)
		b.reply(ctx, chatID, fmt.Sprintf("Ваше предложение #%d отправлено на рассмотрение.", id))

	case errors.Is(err, moderation.ErrValidation):
		// Stay in the suggestion flow so the user can fix the caption.
		b.reply(ctx, chatID, moderation.UserMessage(err))

	case errors.Is(err, moderation.ErrPermission):
		b.setState(ctx, userID, db.SessionIdle)
		b.reply(ctx, chatID, moderation.UserMessage(err))

	default:
		b.fail(ctx, chatID, "handleSuggestion", err)
	}
}

func (b *BotService) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	log := zerolog.Ctx(ctx)

	action, err := moderation.DecodeAction(query.Data)
	if err != nil {
		b.answer(ctx, query.ID, moderation.UserMessage(err), true)
		return
	}

	if err := b.service.ApplyAction(ctx, query.From.ID, action); err != nil {
		msg := moderation.UserMessage(err)
		if msg == "" {
			log.Error().Err(err).Str("data", query.Data).Msg("admin action failed")
			msg = "Произошла ошибка. Попробуйте позже."
		}

		b.answer(ctx, query.ID, msg, true)
		return
	}

	b.answer(ctx, query.ID, "Действие выполнено.", false)

	if query.Message != nil {
		del := tgbotapi.NewDeleteMessage(query.Message.Chat.ID, query.Message.MessageID)
		if _, err := b.botAPI.Request(del); err != nil {
			log.Warn().Err(err).Msg("cannot delete review message")
		}
	}
}

func (b *BotService) handleBroadcastCommand(ctx context.Context, chatID, userID int64) {
	ok, err := b.service.IsAdmin(ctx, userID)
	if err != nil {
		b.fail(ctx, chatID, "handleBroadcastCommand", err)
		return
	}

	if !ok {
		b.reply(ctx, chatID, "У вас нет прав администратора.")
		return
	}

	b.reply(ctx, chatID, "Отправьте сообщение для рассылки, начав его с "+broadcastPrefix+".")
}

func (b *BotService) handleBroadcast(ctx context.Context, chatID, userID int64, body string) {
	report, err := b.service.Broadcast(ctx, userID, body)
	if err != nil {
		if msg := moderation.UserMessage(err); msg != "" {
			b.reply(ctx, chatID, msg)
			return
		}

		b.fail(ctx, chatID, "handleBroadcast", err)
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Рассылка завершена: доставлено %d, не доставлено %d.", report.Delivered, report.Failed))
}

func (b *BotService) handleStatus(ctx context.Context, chatID, userID int64, args string) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(args), "#"), 10, 64)
	if err != nil || id <= 0 {
		b.reply(ctx, chatID, "Использование: /status <номер предложения>")
		return
	}

	sg, err := b.service.Suggestion(ctx, userID, id)
	if err != nil {
		if msg := moderation.UserMessage(err); msg != "" {
			b.reply(ctx, chatID, msg)
			return
		}

		b.fail(ctx, chatID, "handleStatus", err)
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Предложение #%d от %s: %s.", sg.ID, sg.SubmitterName, moderation.StatusLabel(sg.Status)))
}

func (b *BotService) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.botAPI.Send(msg); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("cannot send reply")
	}
}

func (b *BotService) answer(ctx context.Context, queryID, text string, alert bool) {
	cb := tgbotapi.NewCallback(queryID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(queryID, text)
	}

	if _, err := b.botAPI.Request(cb); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("cannot answer callback")
	}
}

// fail logs an internal error and apologizes to the user.
func (b *BotService) fail(ctx context.Context, chatID int64, where string, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Str("handler", where).Int64("chat_id", chatID).Msg("request failed")
	b.reply(ctx, chatID, "Произошла ошибка. Попробуйте позже.")
}
