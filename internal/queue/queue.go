// Package queue carries roster events from the API to the roster worker.
package queue

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Roster event types. The body is the removed member's id.
const (
	StudentDeleted     = "student.deleted"
	CoordinatorDeleted = "coordinator.deleted"
)

// DefaultKey is the Redis list used for roster events.
const DefaultKey = "nssportal:roster"

// Message is one roster event.
type Message struct {
	Type string
	Body []byte
}

// Event builds a roster event for member id.
func Event(typ, id string) Message {
	return Message{Type: typ, Body: []byte(id)}
}

// ID returns the member id carried by the event.
func (m Message) ID() string { return string(m.Body) }

// Publisher is the producing half of a Queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Queue is implemented by InMemory and RedisQueue.
type Queue interface {
	Publisher
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a bounded channel queue, visible only inside one process.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Len reports how many messages are waiting.
func (q *InMemory) Len() int { return len(q.ch) }

// Redis list polling parameters.
const (
	popTimeout = 5 * time.Second
	maxBackoff = 30 * time.Second
)

// RedisQueue shares roster events between processes through one Redis list.
// Producers LPUSH, the worker BRPOPs, so events are consumed oldest first.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue on key, or DefaultKey when key is empty.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Len reports how many events wait in the list.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consume pops events until ctx is done. Redis errors are retried with a
// doubling delay capped at maxBackoff.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("queue: brpop %s: %v, retrying in %s", q.key, err, backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			if len(res) != 2 {
				continue
			}
			select {
			case out <- deserialize(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// serialize encodes a message as "type|body"; the body may contain '|'.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
