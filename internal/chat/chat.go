// Package chat holds the domain components behind the live session
// coordinator: identities, rooms, transitions and messages. Every component
// talks to the shared database.Store and nothing else.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/nodechat/internal/database"
	"go.uber.org/zap"
)

// ErrInvalid marks requests rejected before touching the store.
var ErrInvalid = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Outcome classifies the result of handling one client event.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeInvalid
	OutcomeStoreFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeStoreFailure:
		return "store_failure"
	}
	return "unknown"
}

func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalid):
		return OutcomeInvalid
	default:
		return OutcomeStoreFailure
	}
}

const (
	DefaultHistoryLimit     = 50
	DefaultMaxDwellSeconds  = 6 * 60 * 60
	DefaultMaxMessageLength = 1000
	DefaultRoomCacheSize    = 1024
)

type Options struct {
	HistoryLimit     int
	MaxDwellSeconds  int
	MaxMessageLength int
	RoomCacheSize    int
	// Now is the clock used for every timestamp written to the store.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.MaxDwellSeconds <= 0 {
		o.MaxDwellSeconds = DefaultMaxDwellSeconds
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = DefaultMaxMessageLength
	}
	if o.RoomCacheSize <= 0 {
		o.RoomCacheSize = DefaultRoomCacheSize
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Service bundles the components sharing one store.
type Service struct {
	Identity    *IdentityRegistry
	Rooms       *RoomDirectory
	Transitions *TransitionLog
	Messages    *MessageStore
}

func NewService(store database.Store, log *zap.Logger, opts Options) (*Service, error) {
	opts = opts.withDefaults()

	rooms, err := NewRoomDirectory(store, log, opts)
	if err != nil {
		return nil, err
	}

	return &Service{
		Identity:    NewIdentityRegistry(store, log, opts),
		Rooms:       rooms,
		Transitions: NewTransitionLog(store, rooms, log, opts),
		Messages:    NewMessageStore(store, rooms, log, opts),
	}, nil
}
