package bot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gratefultolord/art_suggest_bot/internal/db"
)

// state returns the user's conversation state. A session store failure
// falls back to idle so the user can still reach the commands.
func (b *BotService) state(ctx context.Context, userID int64) db.SessionState {
	s, err := b.sessions.Get(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("cannot load session")
		return db.SessionIdle
	}

	return s.State
}

func (b *BotService) setState(ctx context.Context, userID int64, state db.SessionState) {
	if err := b.sessions.Set(ctx, userID, state); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Int64("user_id", userID).
			Str("state", string(state)).
			Msg("cannot save session")
	}
}
