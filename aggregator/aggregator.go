// Package aggregator moves fold results through Redis to a single
// process that owns the shared logs, so array tasks never contend for
// the file lock.
//
// A task stores its record under a short-lived key and publishes the
// key's correlation ID; the aggregator fetches, deletes and appends.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thavlik/foldy-array/sharedlog"
)

// DefaultChannel is the pub/sub channel results are announced on.
const DefaultChannel = "foldy"

// DefaultTTL bounds how long an unclaimed payload is kept.
const DefaultTTL = time.Hour

// ErrPayloadNotFound means the announced payload expired or was
// already claimed.
var ErrPayloadNotFound = errors.New("payload not found")

// Payload is what a task hands to the aggregator.
type Payload struct {
	LogPath string            `json:"log_path"`
	Format  sharedlog.Format  `json:"format"`
	Record  *sharedlog.Record `json:"record"`
}

func rkResult(correlationID string) string {
	return fmt.Sprintf("r:%s:i", correlationID)
}

// NewClient connects to addr, which is either host:port or a
// redis:// URL, and pings it.
func NewClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis uri: %v", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: %v", err)
	}
	return client, nil
}

// Publisher sends records to the aggregator.
type Publisher struct {
	Client  *redis.Client
	Channel string
	TTL     time.Duration
	Format  sharedlog.Format
	// Fallback writes the record when no aggregator is subscribed.
	// Defaults to sharedlog.Append.
	Fallback func(path string, rec *sharedlog.Record, format sharedlog.Format) error
}

// Emit stores rec and announces it in one round trip. When nobody
// received the announcement the stored payload is dropped and rec is
// appended through Fallback instead.
func (p *Publisher) Emit(ctx context.Context, logPath string, rec *sharedlog.Record) error {
	body, err := json.Marshal(&Payload{
		LogPath: logPath,
		Format:  p.Format,
		Record:  rec,
	})
	if err != nil {
		return fmt.Errorf("marshal: %v", err)
	}
	correlationID := uuid.New().String()
	client := p.Client.WithContext(ctx)
	pipe := client.Pipeline()
	pipe.Set(rkResult(correlationID), body, p.TTL)
	receivers := pipe.Publish(p.Channel, correlationID)
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("redis: %v", err)
	}
	if receivers.Val() > 0 {
		log.Debugf("Published %s for %s", correlationID, logPath)
		return nil
	}
	log.Warnf("No aggregator subscribed to %s, appending to %s directly", p.Channel, logPath)
	if err := client.Del(rkResult(correlationID)).Err(); err != nil {
		log.Warnf("Failed to delete unclaimed payload %s: %v", correlationID, err)
	}
	format, err := sharedlog.ParseFormat(string(p.Format))
	if err != nil {
		return err
	}
	fallback := p.Fallback
	if fallback == nil {
		fallback = sharedlog.Append
	}
	return fallback(logPath, rec, format)
}

// Subscriber claims announced payloads and appends them to their logs.
type Subscriber struct {
	Client  *redis.Client
	Channel string
	// Append defaults to sharedlog.Append.
	Append func(path string, rec *sharedlog.Record, format sharedlog.Format) error
}

// Run subscribes and processes announcements until ctx is done.
// Payloads are claimed as they arrive and written by a single writer.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.Client.Subscribe(s.Channel)
	defer pubsub.Close()
	// Wait for confirmation that subscription is created before
	// anything is published.
	if _, err := pubsub.Receive(); err != nil {
		return fmt.Errorf("pubsub: %v", err)
	}
	log.Infof("Subscribed to %s", s.Channel)

	claimed := make(chan *Payload, 64)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(claimed)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return errors.New("subscription closed")
				}
				payload, err := s.claim(msg.Payload)
				if errors.Is(err, ErrPayloadNotFound) {
					log.Warnf("%s: %v", msg.Payload, err)
					continue
				} else if err != nil {
					log.Errorf("error handling broadcast payload %s: %v", msg.Payload, err)
					continue
				}
				select {
				case claimed <- payload:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		for payload := range claimed {
			if err := s.write(payload); err != nil {
				log.Errorf("append %s: %v", payload.LogPath, err)
			}
		}
		return nil
	})
	return g.Wait()
}

// claim fetches and deletes the payload of correlationID in one
// transaction, so concurrent aggregators never both receive it.
func (s *Subscriber) claim(correlationID string) (*Payload, error) {
	key := rkResult(correlationID)
	p := s.Client.TxPipeline()
	getCmd := p.Get(key)
	p.Del(key)
	if _, err := p.Exec(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: %v", err)
	}
	data, err := getCmd.Result()
	if err == redis.Nil {
		return nil, ErrPayloadNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis: %v", err)
	}
	return decode([]byte(data))
}

func decode(data []byte) (*Payload, error) {
	payload := &Payload{}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("unmarshal: %v", err)
	}
	if payload.LogPath == "" || payload.Record == nil {
		return nil, errors.New("incomplete payload")
	}
	if _, err := sharedlog.ParseFormat(string(payload.Format)); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Subscriber) write(payload *Payload) error {
	format, _ := sharedlog.ParseFormat(string(payload.Format))
	appendFn := s.Append
	if appendFn == nil {
		appendFn = sharedlog.Append
	}
	if err := appendFn(payload.LogPath, payload.Record, format); err != nil {
		return err
	}
	log.Infof("Appended %s entry %q", payload.LogPath, payload.Record.Description)
	return nil
}
