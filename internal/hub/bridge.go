package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bridge mirrors hub traffic across instances over Redis Pub/Sub so a user
// connected to another node still receives live events. Payloads are tagged
// with the publishing node id; the subscriber skips its own, local delivery
// already happened on the fast path.
type Bridge struct {
	rdb     *redis.Client
	channel string
	nodeID  string
	deliver func(userID, exceptID string, payload []byte)
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

type bridgeEnvelope struct {
	Node    string          `json:"node"`
	UserID  string          `json:"user_id,omitempty"`
	Except  string          `json:"except,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewBridge(rdb *redis.Client, channel string, log *zap.SugaredLogger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		rdb:     rdb,
		channel: channel,
		nodeID:  uuid.NewString(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run consumes the shared channel until Shutdown. Subscription failures are
// retried with exponential backoff.
func (b *Bridge) Run() {
	for {
		err := b.consume()
		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			b.log.Warnw("bridge subscription lost, reconnecting", "error", err)
		}
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 30 * time.Second
		_ = backoff.Retry(func() error {
			return b.rdb.Ping(b.ctx).Err()
		}, backoff.WithContext(bo, b.ctx))
	}
}

func (b *Bridge) consume() error {
	sub := b.rdb.Subscribe(b.ctx, b.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Node == b.nodeID {
				continue
			}
			if b.deliver != nil {
				b.deliver(env.UserID, env.Except, env.Payload)
			}
		}
	}
}

func (b *Bridge) publish(userID, exceptID string, payload []byte) {
	env := bridgeEnvelope{Node: b.nodeID, UserID: userID, Except: exceptID, Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(b.ctx, b.channel, raw).Err(); err != nil {
		b.log.Warnw("bridge publish failed", "error", err)
	}
}

func (b *Bridge) Shutdown() {
	b.cancel()
}
