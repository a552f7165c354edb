package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the dispatcher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramDispatcher struct {
	sender  Sender
	channel string
}

// NewTelegramDispatcher publishes channel posts to channel, which is either a
// numeric chat id or an @username.
func NewTelegramDispatcher(sender Sender, channel string) *TelegramDispatcher {
	return &TelegramDispatcher{
		sender:  sender,
		channel: strings.TrimSpace(channel),
	}
}

func (d *TelegramDispatcher) Dispatch(ctx context.Context, in Instruction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("TelegramDispatcher.Dispatch: %w", err)
	}

	c, err := d.build(in)
	if err != nil {
		return err
	}

	if _, err := d.sender.Send(c); err != nil {
		return fmt.Errorf("TelegramDispatcher.Dispatch: %s: %w", in, err)
	}

	return nil
}

func (d *TelegramDispatcher) build(in Instruction) (tgbotapi.Chattable, error) {
	switch in.Kind {
	case KindDirectMessage:
		msg := tgbotapi.NewMessage(in.ChatID, in.Text)
		msg.ParseMode = tgbotapi.ModeHTML
		return msg, nil

	case KindChannelPost:
		photo := d.channelPhoto(tgbotapi.FileID(in.ImageRef))
		photo.Caption = in.Text
		photo.ParseMode = tgbotapi.ModeHTML
		return photo, nil

	case KindReview:
		photo := tgbotapi.NewPhoto(in.ChatID, tgbotapi.FileID(in.ImageRef))
		photo.Caption = in.Text
		photo.ParseMode = tgbotapi.ModeHTML
		if len(in.Buttons) > 0 {
			photo.ReplyMarkup = inlineKeyboard(in.Buttons)
		}
		return photo, nil

	default:
		return nil, fmt.Errorf("TelegramDispatcher.Dispatch: unknown instruction kind %q", in.Kind)
	}
}

func (d *TelegramDispatcher) channelPhoto(file tgbotapi.RequestFileData) tgbotapi.PhotoConfig {
	if id, err := strconv.ParseInt(d.channel, 10, 64); err == nil {
		return tgbotapi.NewPhoto(id, file)
	}

	return tgbotapi.NewPhotoToChannel(d.channel, file)
}

func inlineKeyboard(buttons []Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
	}

	return tgbotapi.NewInlineKeyboardMarkup(row)
}
