package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// broadcastPrefix marks an admin message as a broadcast to every user.
const broadcastPrefix = "#mail"

const helpText = `Команды:
/start - регистрация
/suggest - предложить арт
/cancel - отменить текущее действие

Для администраторов:
/broadcast - рассылка всем пользователям
/status <номер> - статус предложения`

// largestPhoto returns the file id of the biggest size Telegram offers for
// the attached photo, or "" when there is none.
func largestPhoto(message *tgbotapi.Message) string {
	if len(message.Photo) == 0 {
		return ""
	}

	best := message.Photo[0]
	for _, p := range message.Photo[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}

	return best.FileID
}

func broadcastBody(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, broadcastPrefix) {
		return "", false
	}

	return strings.TrimSpace(strings.TrimPrefix(text, broadcastPrefix)), true
}
