package moderation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gratefultolord/art_suggest_bot/internal/db"
	"github.com/gratefultolord/art_suggest_bot/internal/metrics"
	"github.com/gratefultolord/art_suggest_bot/internal/notify"
)

const maxDisplayNameLen = 64

type UserStore interface {
	Create(ctx context.Context, user *db.User) (bool, error)
	GetByID(ctx context.Context, userID int64) (*db.User, error)
	Block(ctx context.Context, userID int64) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type SuggestionStore interface {
	Create(ctx context.Context, s *db.Suggestion) (int64, error)
	GetByID(ctx context.Context, id int64) (*db.Suggestion, error)
	Decide(ctx context.Context, id int64, status db.SuggestionStatus, adminID int64) (*db.Suggestion, error)
}

type AdminRegistry interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
	GetAll(ctx context.Context) ([]db.Admin, error)
}

type Options struct {
	BotUsername      string
	Promo            Promo
	BroadcastWorkers int
	DispatchTimeout  time.Duration

	// Pick chooses the promo phrase; nil means math/rand.
	Pick func(n int) int
}

// Service owns the suggestion lifecycle. Store mutations always commit
// before any notification is sent, and a failed notification is only
// logged.
type Service struct {
	users       UserStore
	suggestions SuggestionStore
	admins      AdminRegistry
	dispatcher  notify.Dispatcher
	opts        Options
	log         zerolog.Logger
}

func NewService(
	users UserStore,
	suggestions SuggestionStore,
	admins AdminRegistry,
	dispatcher notify.Dispatcher,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}

	if opts.BroadcastWorkers < 1 {
		opts.BroadcastWorkers = 1
	}

	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 15 * time.Second
	}

	return &Service{
		users:       users,
		suggestions: suggestions,
		admins:      admins,
		dispatcher:  dispatcher,
		opts:        opts,
		log:         logger,
	}
}

// Register stores the user under displayName unless already registered.
// It returns the stored user and whether this call created it.
func (s *Service) Register(ctx context.Context, userID int64, displayName string) (*db.User, bool, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, false, validationError("Пожалуйста, укажите свой ник.")
	}

	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return nil, false, validationError(fmt.Sprintf("Ник слишком длинный, максимум %d символа.", maxDisplayNameLen))
	}

	created, err := s.users.Create(ctx, &db.User{ID: userID, DisplayName: name})
	if err != nil {
		return nil, false, fmt.Errorf("moderation.Register: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("moderation.Register: %w", err)
	}

	if created {
		s.log.Info().Int64("user_id", userID).Str("display_name", name).Msg("user registered")
	}

	return user, created, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (*db.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, notFoundError("Вы ещё не зарегистрированы. Используйте /start.", err)
		}

		return nil, fmt.Errorf("moderation.Profile: %w", err)
	}

	return user, nil
}

func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("moderation.IsAdmin: %w", err)
	}

	return ok, nil
}

// CanSubmit reports whether userID may create suggestions right now.
func (s *Service) CanSubmit(ctx context.Context, userID int64) error {
	_, err := s.submitter(ctx, userID)
	return err
}

func (s *Service) submitter(ctx context.Context, userID int64) (*db.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, permissionError("Сначала зарегистрируйтесь с помощью /start.")
		}

		return nil, fmt.Errorf("moderation.submitter: %w", err)
	}

	if user.Blocked {
		return nil, permissionError("Вы заблокированы и не можете предлагать посты.")
	}

	return user, nil
}

// Submit creates a pending suggestion and sends it to every admin for review.
func (s *Service) Submit(ctx context.Context, submitterID int64, imageRef, caption string) (int64, error) {
	user, err := s.submitter(ctx, submitterID)
	if err != nil {
		metrics.RecordSubmission(resultLabel(err))
		return 0, err
	}

	if strings.TrimSpace(imageRef) == "" {
		metrics.RecordSubmission(string(KindValidation))
		return 0, validationError("Пожалуйста, отправьте арт изображением.")
	}

	if !HasTag(caption) {
		metrics.RecordSubmission(string(KindValidation))
		return 0, validationError("Пожалуйста, добавьте хотя бы одного персонажа через хэштеги в описании.")
	}

	id, err := s.suggestions.Create(ctx, &db.Suggestion{
		SubmitterID: submitterID,
		ImageRef:    imageRef,
		Caption:     caption,
		Status:      db.StatusPending,
	})
	if err != nil {
		metrics.RecordSubmission("error")
		return 0, fmt.Errorf("moderation.Submit: %w", err)
	}

	metrics.RecordSubmission("ok")
	s.log.Info().Int64("suggestion_id", id).Int64("user_id", submitterID).Strs("tags", Tags(caption)).Msg("suggestion created")

	admins, err := s.admins.GetAll(ctx)
	if err != nil {
		s.log.Warn().Err(err).Int64("suggestion_id", id).Msg("cannot load admins for review")
		return id, nil
	}

	text := reviewCaption(id, submitterID, user.DisplayName, caption)
	buttons := []notify.Button{
		{Label: "Принять", Data: Accept(id).Encode()},
		{Label: "Отклонить", Data: Reject(id).Encode()},
		{Label: "Блокировать", Data: Block(submitterID).Encode()},
	}

	for _, a := range admins {
		s.dispatch(ctx, notify.Review(a.ID, imageRef, text, buttons...))
	}

	return id, nil
}

// ApplyAction runs an admin decision. Non-admins get a permission error and
// nothing is touched.
func (s *Service) ApplyAction(ctx context.Context, actorID int64, action Action) error {
	err := s.applyAction(ctx, actorID, action)
	metrics.RecordAction(string(action.Kind), resultLabel(err))

	logEvent := s.log.Info()
	if err != nil {
		logEvent = s.log.Warn().Err(err)
	}
	logEvent.Int64("actor_id", actorID).Str("action", string(action.Kind)).Int64("target", action.Target).Msg("moderation action")

	return err
}

func (s *Service) applyAction(ctx context.Context, actorID int64, action Action) error {
	ok, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return fmt.Errorf("moderation.ApplyAction: %w", err)
	}

	if !ok {
		return permissionError("У вас нет прав администратора.")
	}

	switch action.Kind {
	case ActionAccept:
		return s.accept(ctx, actorID, action.Target)
	case ActionReject:
		return s.reject(ctx, actorID, action.Target)
	case ActionBlock:
		return s.block(ctx, action.Target)
	default:
		return validationError("Неизвестное действие.")
	}
}

func (s *Service) accept(ctx context.Context, actorID, suggestionID int64) error {
	sg, err := s.decide(ctx, actorID, suggestionID, db.StatusAccepted)
	if err != nil {
		return err
	}

	name := sg.SubmitterName
	if name == "" {
		name = "Аноним"
	}

	caption := ComposePublishCaption(name, sg.Caption, s.opts.BotUsername, s.opts.Promo, s.opts.Pick)

	s.dispatch(ctx, notify.ChannelPost(sg.ImageRef, caption))
	s.dispatch(ctx, notify.DirectMessage(sg.SubmitterID,
		fmt.Sprintf("Ваше предложение #%d принято, арт опубликован.", sg.ID)))

	return nil
}

func (s *Service) reject(ctx context.Context, actorID, suggestionID int64) error {
	sg, err := s.decide(ctx, actorID, suggestionID, db.StatusRejected)
	if err != nil {
		return err
	}

	s.dispatch(ctx, notify.DirectMessage(sg.SubmitterID,
		fmt.Sprintf("Ваше предложение #%d отклонено.", sg.ID)))

	return nil
}

// block is idempotent; pending suggestions of the user are left as they are.
func (s *Service) block(ctx context.Context, userID int64) error {
	if err := s.users.Block(ctx, userID); err != nil {
		return fmt.Errorf("moderation.block: %w", err)
	}

	s.dispatch(ctx, notify.DirectMessage(userID, "Вы были заблокированы и больше не можете предлагать арты."))

	return nil
}

func (s *Service) decide(ctx context.Context, actorID, suggestionID int64, status db.SuggestionStatus) (*db.Suggestion, error) {
	sg, err := s.suggestions.Decide(ctx, suggestionID, status, actorID)

	switch {
	case err == nil:
		return sg, nil

	case errors.Is(err, db.ErrNotFound):
		return nil, notFoundError("Предложение не найдено.", err)

	case errors.Is(err, db.ErrNotPending):
		msg := fmt.Sprintf("Предложение #%d уже рассмотрено.", suggestionID)
		if sg != nil {
			msg = fmt.Sprintf("Предложение #%d уже %s.", suggestionID, statusLabel(sg.Status))
		}
		return nil, conflictError(msg, err)

	default:
		return nil, fmt.Errorf("moderation.decide: %w", err)
	}
}

// Suggestion returns a suggestion for an admin status lookup.
func (s *Service) Suggestion(ctx context.Context, actorID, suggestionID int64) (*db.Suggestion, error) {
	ok, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("moderation.Suggestion: %w", err)
	}

	if !ok {
		return nil, permissionError("У вас нет прав администратора.")
	}

	sg, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, notFoundError("Предложение не найдено.", err)
		}

		return nil, fmt.Errorf("moderation.Suggestion: %w", err)
	}

	return sg, nil
}

// StatusLabel is the human readable status shown to admins.
func StatusLabel(status db.SuggestionStatus) string {
	return statusLabel(status)
}

// Broadcast sends content as plain text to every registered user. Delivery
// failures are counted per recipient and never stop the fan-out.
func (s *Service) Broadcast(ctx context.Context, senderID int64, content string) (notify.Report, error) {
	ok, err := s.admins.IsAdmin(ctx, senderID)
	if err != nil {
		return notify.Report{}, fmt.Errorf("moderation.Broadcast: %w", err)
	}

	if !ok {
		return notify.Report{}, permissionError("У вас нет прав администратора.")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return notify.Report{}, validationError("Сообщение для рассылки пустое.")
	}

	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return notify.Report{}, fmt.Errorf("moderation.Broadcast: %w", err)
	}

	text := html.EscapeString(content)
	ins := make([]notify.Instruction, 0, len(ids))
	for _, id := range ids {
		ins = append(ins, notify.DirectMessage(id, text))
	}

	log := s.log.With().Str("broadcast_id", uuid.NewString()).Int64("sender_id", senderID).Logger()
	log.Info().Int("recipients", len(ins)).Msg("broadcast started")

	report := notify.FanOut(context.WithoutCancel(ctx), s.timed(), s.opts.BroadcastWorkers, ins, func(in notify.Instruction, err error) {
		metrics.RecordNotification(string(in.Kind), "failed")
		log.Warn().Err(err).Int64("chat_id", in.ChatID).Msg("broadcast delivery failed")
	})

	metrics.RecordNotifications(string(notify.KindDirectMessage), "ok", report.Delivered)

	log.Info().Int("delivered", report.Delivered).Int("failed", report.Failed).Msg("broadcast finished")

	return report, nil
}

// dispatch sends in after the caller's mutation has committed. It outlives
// the caller's cancellation and only logs failures.
func (s *Service) dispatch(ctx context.Context, in notify.Instruction) {
	if err := s.timed().Dispatch(context.WithoutCancel(ctx), in); err != nil {
		metrics.RecordNotification(string(in.Kind), "failed")
		s.log.Warn().Err(err).Str("kind", string(in.Kind)).Int64("chat_id", in.ChatID).Msg("notification failed")
		return
	}

	metrics.RecordNotification(string(in.Kind), "ok")
}

func (s *Service) timed() notify.Dispatcher {
	return timeoutDispatcher{next: s.dispatcher, timeout: s.opts.DispatchTimeout}
}

type timeoutDispatcher struct {
	next    notify.Dispatcher
	timeout time.Duration
}

func (d timeoutDispatcher) Dispatch(ctx context.Context, in notify.Instruction) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.next.Dispatch(ctx, in)
}

func statusLabel(status db.SuggestionStatus) string {
	switch status {
	case db.StatusAccepted:
		return "принято"
	case db.StatusRejected:
		return "отклонено"
	default:
		return "на рассмотрении"
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}

	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}

	return "error"
}
