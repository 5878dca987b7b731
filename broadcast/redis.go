package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/outline"
)

const (
	channelPrefix  = "outline:doc:"
	channelPattern = channelPrefix + "*"

	// publishBuffer bounds the queue of events waiting to go out to Redis.
	publishBuffer = 256
)

// busFrame is the wire format events travel in on the Redis bus. Origin
// identifies the publishing instance so it can ignore its own frames.
type busFrame struct {
	Origin string          `json:"origin"`
	Kind   string          `json:"kind"`
	Event  json.RawMessage `json:"event"`
}

// RedisBridge connects a local Broker to a Redis pub/sub bus so events
// reach subscribers on every instance. Local events fan out to the broker
// synchronously, preserving commit order, and are queued for Redis; frames
// arriving from other origins feed the local broker only.
type RedisBridge struct {
	broker *Broker
	client *redis.Client
	pubsub *redis.PubSub
	origin string
	log    zerolog.Logger

	out    chan outline.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBridge subscribes to the event bus and starts the relay loops.
// ctx covers only the subscription handshake.
func NewRedisBridge(ctx context.Context, client *redis.Client, broker *Broker, logger zerolog.Logger) (*RedisBridge, error) {
	pubsub := client.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to event bus: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	br := &RedisBridge{
		broker: broker,
		client: client,
		pubsub: pubsub,
		origin: uuid.NewString(),
		log:    logger.With().Str("component", "redis_bridge").Logger(),
		out:    make(chan outline.Event, publishBuffer),
		cancel: cancel,
	}
	br.wg.Add(2)
	go br.publishLoop(loopCtx)
	go br.subscribeLoop(loopCtx)
	return br, nil
}

// Publish implements outline.EventPublisher.
func (br *RedisBridge) Publish(ev outline.Event) {
	br.broker.Publish(ev)
	select {
	case br.out <- ev:
	default:
		br.log.Warn().
			Str("document", ev.Document().String()).
			Str("kind", ev.Kind()).
			Msg("redis publish queue full, dropping event")
	}
}

// Close stops both loops and closes the bus subscription. The wrapped
// broker is left running.
func (br *RedisBridge) Close() {
	br.cancel()
	_ = br.pubsub.Close()
	br.wg.Wait()
}

func channelFor(docID uuid.UUID) string {
	return channelPrefix + docID.String()
}

func (br *RedisBridge) publishLoop(ctx context.Context) {
	defer br.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-br.out:
			payload, err := json.Marshal(ev)
			if err != nil {
				br.log.Error().Err(err).Str("kind", ev.Kind()).Msg("marshal event")
				continue
			}
			frame, err := json.Marshal(busFrame{Origin: br.origin, Kind: ev.Kind(), Event: payload})
			if err != nil {
				br.log.Error().Err(err).Str("kind", ev.Kind()).Msg("marshal frame")
				continue
			}
			if err := br.client.Publish(ctx, channelFor(ev.Document()), frame).Err(); err != nil {
				br.log.Error().Err(err).
					Str("document", ev.Document().String()).
					Msg("publish to redis")
			}
		}
	}
}

func (br *RedisBridge) subscribeLoop(ctx context.Context) {
	defer br.wg.Done()
	ch := br.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			br.handleFrame([]byte(msg.Payload))
		}
	}
}

func (br *RedisBridge) handleFrame(payload []byte) {
	var frame busFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		br.log.Warn().Err(err).Msg("bad frame from bus")
		return
	}
	if frame.Origin == br.origin {
		return
	}
	ev, err := outline.DecodeEvent(frame.Kind, frame.Event)
	if err != nil {
		br.log.Warn().Err(err).Str("kind", frame.Kind).Msg("decode event from bus")
		return
	}
	br.broker.Publish(ev)
}
