package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cycleconnect/internal/pkg/logx"
)

// Frame is an encoded envelope addressed to the members of one ride room.
type Frame struct {
	RideID string `json:"rideId"`

	// Skip is the connection id excluded from delivery, empty to reach everyone.
	Skip string `json:"skip,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// Fanout carries room frames to every hub process that may hold members of the room.
type Fanout interface {
	Publish(ctx context.Context, f Frame) error

	// Subscribe registers deliver and returns once frames can flow.
	// Delivery stops when ctx is done.
	Subscribe(ctx context.Context, deliver func(Frame)) error

	Close() error
}

var errNotSubscribed = errors.New("fanout has no subscriber")

// LocalFanout delivers frames within the current process.
type LocalFanout struct {
	mu      sync.RWMutex
	deliver func(Frame)
}

func NewLocalFanout() *LocalFanout {
	return &LocalFanout{}
}

func (l *LocalFanout) Publish(_ context.Context, f Frame) error {
	l.mu.RLock()
	deliver := l.deliver
	l.mu.RUnlock()

	if deliver == nil {
		return errNotSubscribed
	}
	deliver(f)
	return nil
}

func (l *LocalFanout) Subscribe(ctx context.Context, deliver func(Frame)) error {
	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		l.deliver = nil
		l.mu.Unlock()
	}()
	return nil
}

func (l *LocalFanout) Close() error { return nil }

// RedisChannelPrefix prefixes the pub/sub channel of every ride room.
const RedisChannelPrefix = "cycleconnect:ride:"

// RedisFanout relays frames through Redis pub/sub so that members connected to
// different processes share one room.
type RedisFanout struct {
	rdb    *redis.Client
	logger zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisFanout(rdb *redis.Client) *RedisFanout {
	return &RedisFanout{
		rdb:    rdb,
		logger: logx.Component("hub-redis"),
	}
}

func (f *RedisFanout) Publish(ctx context.Context, fr Frame) error {
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, RedisChannelPrefix+fr.RideID, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (f *RedisFanout) Subscribe(ctx context.Context, deliver func(Frame)) error {
	pubsub := f.rdb.PSubscribe(ctx, RedisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	f.mu.Lock()
	f.pubsub = pubsub
	f.mu.Unlock()

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var fr Frame
				if err := json.Unmarshal([]byte(msg.Payload), &fr); err != nil {
					f.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed frame")
					continue
				}
				if fr.RideID == "" {
					fr.RideID = strings.TrimPrefix(msg.Channel, RedisChannelPrefix)
				}
				deliver(fr)
			}
		}
	}()

	f.logger.Info().Str("pattern", RedisChannelPrefix+"*").Msg("Subscribed to ride channels")
	return nil
}

func (f *RedisFanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pubsub == nil {
		return nil
	}
	err := f.pubsub.Close()
	f.pubsub = nil
	return err
}
