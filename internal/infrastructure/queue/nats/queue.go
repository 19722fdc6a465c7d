package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

type Queue struct {
	conn        *nats.Conn
	subject     string
	queueGroup  string
	concurrency int
	executor    *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	Name                 string
	QueueGroup           string
	Concurrency          int
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.Name
	if name == "" {
		name = "lecture-assistant"
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "ingestion-workers"
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		queueGroup:  queueGroup,
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports whether the connection is usable.
func (q *Queue) Ping(_ context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return domain.WrapError(domain.ErrTransient, "nats ping", nats.ErrDisconnected)
	}
	return nil
}

// EncodeEvent renders the upload event in the Cloud Storage notification shape.
func EncodeEvent(ref domain.DocumentRef) ([]byte, error) {
	return json.Marshal(ref)
}

func DecodeEvent(data []byte) (domain.DocumentRef, error) {
	var ref domain.DocumentRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return domain.DocumentRef{}, domain.WrapError(domain.ErrInvalidInput, "decode upload event", err)
	}
	if strings.TrimSpace(ref.Key) == "" {
		return domain.DocumentRef{}, domain.WrapError(domain.ErrInvalidInput, "decode upload event", fmt.Errorf("object name is empty"))
	}
	return ref, nil
}

func (q *Queue) PublishDocumentUploaded(ctx context.Context, ref domain.DocumentRef) error {
	payload, err := EncodeEvent(ref)
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeDocumentUploaded runs handler for each upload event, at most concurrency at a
// time. The NATS callback blocks while all slots are busy. It returns once ctx is done and
// in-flight handlers have finished.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.DocumentRef) error) error {
	sem := make(chan struct{}, q.concurrency)
	// in-flight runs finish on shutdown; the handler bounds its own duration
	handlerCtx := context.WithoutCancel(ctx)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stopped bool
	)

	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		ref, err := DecodeEvent(msg.Data)
		if err != nil {
			slog.Warn("upload_event_invalid", "payload", string(msg.Data), "error", err)
			return
		}

		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		wg.Add(1)
		mu.Unlock()

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Done()
			return
		}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := handler(handlerCtx, ref); err != nil {
				slog.Error("ingestion_handler_failed", "document", ref.String(), "error", err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	mu.Lock()
	stopped = true
	mu.Unlock()

	drainErr := sub.Drain()
	wg.Wait()
	if drainErr != nil && !errors.Is(drainErr, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
