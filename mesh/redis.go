package mesh

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/relaykit/kernel/kernelerr"
)

// RedisTransport implements Transport over Redis lists (mailboxes), pub/sub
// channels (topics and broadcast), and a TTL-keyed presence set. It is
// grounded directly on the teacher pack's orchestration.RedisTaskQueue
// (LPUSH/BRPOP mailbox semantics) and core.RedisClient/RedisDiscovery
// (pub/sub channel naming and TTL-refreshed presence keys), generalized
// from a single task queue to the mesh's full capability set.
type RedisTransport struct {
	client     *redis.Client
	keyPrefix  string
	thresholds BackpressureThresholds
}

// RedisTransportConfig configures key naming and backpressure thresholds.
type RedisTransportConfig struct {
	KeyPrefix  string
	Thresholds BackpressureThresholds
}

// NewRedisTransport builds a transport over an already-connected client.
func NewRedisTransport(client *redis.Client, cfg RedisTransportConfig) *RedisTransport {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "relaykit:mesh:"
	}
	if cfg.Thresholds == (BackpressureThresholds{}) {
		cfg.Thresholds = DefaultBackpressureThresholds()
	}
	return &RedisTransport{client: client, keyPrefix: cfg.KeyPrefix, thresholds: cfg.Thresholds}
}

func (t *RedisTransport) mailboxKey(agentID string) string { return t.keyPrefix + "mailbox:" + agentID }
func (t *RedisTransport) channelKey(topic string) string   { return t.keyPrefix + "topic:" + topic }
func (t *RedisTransport) presenceKey(agentID string) string {
	return t.keyPrefix + "presence:" + agentID
}

func meshErr(code kernelerr.Code, op, msg string, err error) *kernelerr.Error {
	return kernelerr.Wrap(kernelerr.KindMesh, code, "mesh.redis", op, msg, err)
}

// Send implements at-least-once point-to-point delivery via LPUSH, with a
// hard-cap backpressure check before the push (spec §4.6).
func (t *RedisTransport) Send(ctx context.Context, agentID string, msg Message) error {
	depth, err := t.QueueDepth(ctx, t.mailboxKey(agentID))
	if err == nil && depth >= t.thresholds.HardCap {
		return kernelerr.New(kernelerr.KindMesh, kernelerr.CodeBackpressureSaturated, "mesh.redis", "Send", "mailbox hard cap exceeded", map[string]any{
			"agent_id": agentID,
			"depth":    depth,
			"hard_cap": t.thresholds.HardCap,
		})
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := t.client.LPush(ctx, t.mailboxKey(agentID), data).Err(); err != nil {
		return meshErr(kernelerr.CodePublishFailed, "Send", "LPUSH failed", err)
	}
	return nil
}

// Receive blocks via BRPOP up to timeout. ok is false if the timeout
// elapses with no message.
func (t *RedisTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (Message, bool, error) {
	result, err := t.client.BRPop(ctx, timeout, t.mailboxKey(agentID)).Result()
	if err == redis.Nil {
		return Message{}, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, false, ctx.Err()
		}
		return Message{}, false, meshErr(kernelerr.CodeSubscribeFailed, "Receive", "BRPOP failed", err)
	}
	if len(result) < 2 {
		return Message{}, false, meshErr(kernelerr.CodeSubscribeFailed, "Receive", "unexpected BRPOP result shape", nil)
	}
	msg, derr := Decode([]byte(result[1]))
	if derr != nil {
		return Message{}, false, derr
	}
	return msg, true, nil
}

// Broadcast publishes msg to the well-known broadcast topic.
func (t *RedisTransport) Broadcast(ctx context.Context, msg Message) error {
	return t.Publish(ctx, BroadcastTopic, msg)
}

// Publish is at-most-once: a subscriber absent at publish time never sees
// msg (matches Redis PUBLISH semantics).
func (t *RedisTransport) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channelKey(topic), data).Err(); err != nil {
		return meshErr(kernelerr.CodePublishFailed, "Publish", "PUBLISH failed", err)
	}
	return nil
}

// redisSubscription adapts *redis.PubSub to the Subscription interface.
type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Next(ctx context.Context) (Message, bool, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, false, nil
		}
		return Message{}, false, meshErr(kernelerr.CodeSubscribeFailed, "Next", "subscription receive failed", err)
	}
	decoded, derr := Decode([]byte(msg.Payload))
	if derr != nil {
		return Message{}, false, derr
	}
	return decoded, true, nil
}

func (s *redisSubscription) Close() error { return s.pubsub.Close() }

// Subscribe opens a pub/sub subscription to topic.
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	pubsub := t.client.Subscribe(ctx, t.channelKey(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, meshErr(kernelerr.CodeSubscribeFailed, "Subscribe", "failed to confirm subscription", err)
	}
	return &redisSubscription{pubsub: pubsub}, nil
}

// RegisterPresence writes a TTL-bound presence key; callers refresh it by
// calling RegisterPresence again before ttl elapses.
func (t *RedisTransport) RegisterPresence(ctx context.Context, agentID string, ttl time.Duration) error {
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}
	if err := t.client.Set(ctx, t.presenceKey(agentID), time.Now().Unix(), ttl).Err(); err != nil {
		return meshErr(kernelerr.CodePublishFailed, "RegisterPresence", "SET with TTL failed", err)
	}
	return nil
}

// DeregisterPresence removes agentID's presence key immediately.
func (t *RedisTransport) DeregisterPresence(ctx context.Context, agentID string) error {
	if err := t.client.Del(ctx, t.presenceKey(agentID)).Err(); err != nil {
		return meshErr(kernelerr.CodePublishFailed, "DeregisterPresence", "DEL failed", err)
	}
	return nil
}

// QueueDepth returns the mailbox list length for key (a raw mailbox key,
// not an agent id — callers pass t.mailboxKey(agentID) or their own key).
func (t *RedisTransport) QueueDepth(ctx context.Context, key string) (int64, error) {
	depth, err := t.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, meshErr(kernelerr.CodeSubscribeFailed, "QueueDepth", "LLEN failed", err)
	}
	return depth, nil
}

// BackpressureLevel classifies a mailbox's current depth.
func (t *RedisTransport) BackpressureLevel(ctx context.Context, agentID string) (BackpressureLevel, error) {
	depth, err := t.QueueDepth(ctx, t.mailboxKey(agentID))
	if err != nil {
		return Normal, err
	}
	return t.thresholds.Level(depth), nil
}
