package moderation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gratefultolord/art_suggest_bot/internal/db"
	"github.com/gratefultolord/art_suggest_bot/internal/moderation"
	"github.com/gratefultolord/art_suggest_bot/internal/notify"
)

const alice int64 = 1001

func TestEndToEnd_Scenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1: register and submit.
	f.register(t, alice, "alice")

	id, err := f.svc.Submit(ctx, alice, "img1", "nice pic #hero")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, db.StatusPending, f.suggestions.status(1))

	reviews := f.out.ofKind(notify.KindReview)
	require.Len(t, reviews, 1)
	assert.Equal(t, adminID, reviews[0].ChatID)
	assert.Equal(t, "img1", reviews[0].ImageRef)
	assert.Contains(t, reviews[0].Text, "alice")
	require.Len(t, reviews[0].Buttons, 3)
	assert.Equal(t, "accept_1", reviews[0].Buttons[0].Data)
	assert.Equal(t, "reject_1", reviews[0].Buttons[1].Data)
	assert.Equal(t, "block_1001", reviews[0].Buttons[2].Data)

	// 2: admin accepts.
	f.out.reset()
	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Accept(1)))
	assert.Equal(t, db.StatusAccepted, f.suggestions.status(1))

	posts := f.out.ofKind(notify.KindChannelPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "img1", posts[0].ImageRef)
	assert.Contains(t, posts[0].Text, "alice")
	assert.Contains(t, posts[0].Text, "nice pic #hero")
	assert.Contains(t, posts[0].Text, testPromo.Phrases[1])

	dms := f.out.ofKind(notify.KindDirectMessage)
	require.Len(t, dms, 1)
	assert.Equal(t, alice, dms[0].ChatID)
	assert.Contains(t, dms[0].Text, "#1")

	// 3: no tags.
	_, err = f.svc.Submit(ctx, alice, "img2", "no tags here")
	assert.ErrorIs(t, err, moderation.ErrValidation)
	assert.Equal(t, 1, f.suggestions.count())

	// 4: blocked user cannot submit.
	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(alice)))
	_, err = f.svc.Submit(ctx, alice, "img3", "#x")
	assert.ErrorIs(t, err, moderation.ErrPermission)
	assert.Equal(t, 1, f.suggestions.count())

	// 5: non-admin accept.
	err = f.svc.ApplyAction(ctx, alice, moderation.Accept(1))
	assert.ErrorIs(t, err, moderation.ErrPermission)
	assert.Equal(t, db.StatusAccepted, f.suggestions.status(1))
}

func TestSubmit_ValidationIffNoTag(t *testing.T) {
	tests := []struct {
		caption string
		valid   bool
	}{
		{"nice pic #hero", true},
		{"#x", true},
		{"два персонажа #Алиса #Боб", true},
		{"#tag_with_underscore", true},
		{"line one\n#second_line", true},
		{"no tags here", false},
		{"", false},
		{"just a # sign", false},
		{"email#notatag", false},
		{"#", false},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			f := newFixture(t)
			f.register(t, alice, "alice")

			_, err := f.svc.Submit(context.Background(), alice, "img", tt.caption)
			if tt.valid {
				assert.NoError(t, err)
				assert.Equal(t, 1, f.suggestions.count())
			} else {
				assert.ErrorIs(t, err, moderation.ErrValidation)
				assert.NotEmpty(t, moderation.UserMessage(err))
				assert.Zero(t, f.suggestions.count())
			}
		})
	}
}

func TestSubmit_Permission(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Submit(ctx, 7, "img", "#hero")
		assert.ErrorIs(t, err, moderation.ErrPermission)
		assert.ErrorIs(t, f.svc.CanSubmit(ctx, 7), moderation.ErrPermission)
		assert.Zero(t, f.suggestions.count())
	})

	t.Run("missing image", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, alice, "alice")

		_, err := f.svc.Submit(ctx, alice, " ", "#hero")
		assert.ErrorIs(t, err, moderation.ErrValidation)
	})

	t.Run("blocked stays blocked", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, alice, "alice")
		require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(alice)))

		for i := 0; i < 3; i++ {
			_, err := f.svc.Submit(ctx, alice, "img", "#hero")
			assert.ErrorIs(t, err, moderation.ErrPermission)
		}
		assert.ErrorIs(t, f.svc.CanSubmit(ctx, alice), moderation.ErrPermission)
	})
}

func TestApplyAction_NonAdminChangesNothing(t *testing.T) {
	ctx := context.Background()
	actions := []moderation.Action{
		moderation.Accept(1),
		moderation.Reject(1),
		moderation.Block(alice),
	}

	for _, action := range actions {
		t.Run(string(action.Kind), func(t *testing.T) {
			f := newFixture(t)
			f.register(t, alice, "alice")
			_, err := f.svc.Submit(ctx, alice, "img", "#hero")
			require.NoError(t, err)
			f.out.reset()

			usersBefore := f.users.snapshot()

			err = f.svc.ApplyAction(ctx, alice, action)
			assert.ErrorIs(t, err, moderation.ErrPermission)
			assert.Equal(t, db.StatusPending, f.suggestions.status(1))
			assert.Equal(t, usersBefore, f.users.snapshot())
			assert.Empty(t, f.out.sent)
		})
	}
}

func TestApplyAction_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		first  func(int64) moderation.Action
		second func(int64) moderation.Action
		final  db.SuggestionStatus
	}{
		{"accept then reject", moderation.Accept, moderation.Reject, db.StatusAccepted},
		{"reject then accept", moderation.Reject, moderation.Accept, db.StatusRejected},
		{"accept twice", moderation.Accept, moderation.Accept, db.StatusAccepted},
		{"reject twice", moderation.Reject, moderation.Reject, db.StatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.register(t, alice, "alice")
			id, err := f.svc.Submit(ctx, alice, "img", "#hero")
			require.NoError(t, err)

			require.NoError(t, f.svc.ApplyAction(ctx, adminID, tt.first(id)))
			f.out.reset()

			err = f.svc.ApplyAction(ctx, adminID, tt.second(id))
			assert.ErrorIs(t, err, moderation.ErrConflict)
			assert.Contains(t, moderation.UserMessage(err), "уже")
			assert.Equal(t, tt.final, f.suggestions.status(id))
			assert.Empty(t, f.out.sent)
		})
	}
}

func TestApplyAction_UnknownSuggestion(t *testing.T) {
	f := newFixture(t)

	for _, action := range []moderation.Action{moderation.Accept(99), moderation.Reject(99)} {
		err := f.svc.ApplyAction(context.Background(), adminID, action)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	}
	assert.Empty(t, f.out.sent)
}

func TestApplyAction_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")
	id, err := f.svc.Submit(ctx, alice, "img", "#hero")
	require.NoError(t, err)
	f.out.reset()

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Reject(id)))
	assert.Equal(t, db.StatusRejected, f.suggestions.status(id))
	assert.Empty(t, f.out.ofKind(notify.KindChannelPost))

	dms := f.out.ofKind(notify.KindDirectMessage)
	require.Len(t, dms, 1)
	assert.Equal(t, alice, dms[0].ChatID)
	assert.Contains(t, dms[0].Text, "отклонено")
}

func TestApplyAction_BlockIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(alice)))
	once := f.users.snapshot()

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(alice)))
	assert.Equal(t, once, f.users.snapshot())
	assert.True(t, once[alice].Blocked)

	// Unknown users are a no-op success.
	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(555)))
	_, exists := f.users.snapshot()[555]
	assert.False(t, exists)

	assert.Len(t, f.out.ofKind(notify.KindDirectMessage), 3)
}

func TestApplyAction_BlockKeepsPendingSuggestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")
	id, err := f.svc.Submit(ctx, alice, "img", "#hero")
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Block(alice)))
	assert.Equal(t, db.StatusPending, f.suggestions.status(id))

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Accept(id)))
	assert.Equal(t, db.StatusAccepted, f.suggestions.status(id))
}

func TestApplyAction_FailedNotificationKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")
	id, err := f.svc.Submit(ctx, alice, "img", "#hero")
	require.NoError(t, err)

	f.out.failKind[notify.KindChannelPost] = true
	f.out.failKind[notify.KindDirectMessage] = true

	require.NoError(t, f.svc.ApplyAction(ctx, adminID, moderation.Accept(id)))
	assert.Equal(t, db.StatusAccepted, f.suggestions.status(id))
}

func TestSubmit_FailedReviewKeepsSuggestion(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice, "alice")
	f.out.failKind[notify.KindReview] = true

	id, err := f.svc.Submit(context.Background(), alice, "img", "#hero")
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, f.suggestions.status(id))
}

func TestApplyAction_ConcurrentAcceptPublishesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")
	id, err := f.svc.Submit(ctx, alice, "img", "#hero")
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := moderation.Accept(id)
			if i%2 == 1 {
				action = moderation.Reject(id)
			}
			errs <- f.svc.ApplyAction(ctx, adminID, action)
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, moderation.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	assert.True(t, f.suggestions.status(id).Terminal())
	assert.LessOrEqual(t, len(f.out.ofKind(notify.KindChannelPost)), 1)
}

func TestApplyAction_UnknownKind(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyAction(context.Background(), adminID, moderation.Action{Kind: "promote", Target: 1})
	assert.ErrorIs(t, err, moderation.ErrValidation)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, created, err := f.svc.Register(ctx, alice, "  alice  ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", u.DisplayName)

	u, created, err = f.svc.Register(ctx, alice, "mallory")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice", u.DisplayName)

	_, _, err = f.svc.Register(ctx, 2, "   ")
	assert.ErrorIs(t, err, moderation.ErrValidation)

	long := make([]rune, 65)
	for i := range long {
		long[i] = 'я'
	}
	_, _, err = f.svc.Register(ctx, 3, string(long))
	assert.ErrorIs(t, err, moderation.ErrValidation)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Profile(ctx, alice)
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	f.register(t, alice, "alice")
	u, err := f.svc.Profile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.DisplayName)
}

func TestSuggestion_AdminLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, "alice")
	id, err := f.svc.Submit(ctx, alice, "img", "#hero")
	require.NoError(t, err)

	sg, err := f.svc.Suggestion(ctx, adminID, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", sg.SubmitterName)
	assert.Equal(t, "на рассмотрении", moderation.StatusLabel(sg.Status))

	_, err = f.svc.Suggestion(ctx, alice, id)
	assert.ErrorIs(t, err, moderation.ErrPermission)

	_, err = f.svc.Suggestion(ctx, adminID, 99)
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("isolates failures", func(t *testing.T) {
		f := newFixture(t)
		for id := int64(1); id <= 6; id++ {
			f.register(t, id, "user")
		}
		f.out.failChat[3] = true
		f.out.failChat[5] = true

		report, err := f.svc.Broadcast(ctx, adminID, "Новый конкурс <скоро>")
		require.NoError(t, err)
		assert.Equal(t, notify.Report{Delivered: 4, Failed: 2}, report)

		dms := f.out.ofKind(notify.KindDirectMessage)
		require.Len(t, dms, 4)
		assert.Equal(t, "Новый конкурс &lt;скоро&gt;", dms[0].Text)
	})

	t.Run("non admin", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, alice, "alice")

		_, err := f.svc.Broadcast(ctx, alice, "spam")
		assert.ErrorIs(t, err, moderation.ErrPermission)
		assert.Empty(t, f.out.sent)
	})

	t.Run("empty content", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Broadcast(ctx, adminID, "  ")
		assert.ErrorIs(t, err, moderation.ErrValidation)
	})
}
