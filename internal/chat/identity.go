package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/types"
	"go.uber.org/zap"
)

// IdentityRegistry maps a client-held local token to a durable user.
type IdentityRegistry struct {
	store database.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewIdentityRegistry(store database.Store, log *zap.Logger, opts Options) *IdentityRegistry {
	opts = opts.withDefaults()
	return &IdentityRegistry{
		store: store,
		log:   log,
		now:   opts.Now,
	}
}

// EstablishSession returns the user owning localToken, creating it on first
// sight. An empty token starts a new identity with a freshly issued token and
// an empty nickname gets a generated one.
func (r *IdentityRegistry) EstablishSession(ctx context.Context, localToken, nickname string, attribution types.Attribution) (database.User, error) {
	localToken = strings.TrimSpace(localToken)
	if localToken == "" {
		localToken = uuid.NewString()
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = goname.New(goname.FantasyMap).FirstLast()
	}

	user, err := r.store.UpsertUser(ctx, database.UpsertUserParams{
		LocalToken:  localToken,
		Nickname:    nickname,
		Attribution: attribution,
		SeenAt:      r.now(),
	})
	if err != nil {
		return database.User{}, fmt.Errorf("establish session: %w", err)
	}

	r.log.Debug("session established",
		zap.String("user_id", user.Id.String()),
		zap.String("nickname", user.Nickname),
	)
	return user, nil
}
