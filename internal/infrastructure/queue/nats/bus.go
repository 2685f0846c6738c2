package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

// DefaultQueueGroup load-balances query requests across worker replicas.
const DefaultQueueGroup = "medical-workers"

// requestPolicy repeats a request only when no worker can have received it. A timed
// out request may still be running on a worker and is not sent again.
var requestPolicy = resilience.Policy{
	Transient: []error{nats.ErrNoServers, nats.ErrNoResponders, nats.ErrConnectionClosed, nats.ErrDisconnected},
	Final:     []error{nats.ErrTimeout},
}

// Bus carries query requests from the API to workers with NATS request/reply.
type Bus struct {
	conn           *nats.Conn
	subject        string
	queueGroup     string
	requestTimeout time.Duration
	executor       *resilience.Executor
}

// Options tune the connection. RequestTimeout bounds Request when the caller's
// context has no deadline.
type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	RequestTimeout       time.Duration
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Bus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Bus, error) {
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
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Minute
	}

	conn, err := nats.Connect(
		url,
		nats.Name("medical-rag-assistant"),
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
	return &Bus{
		conn:           conn,
		subject:        subject,
		queueGroup:     queueGroup,
		requestTimeout: requestTimeout,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Request sends a query payload to a worker and waits for its reply until ctx ends.
func (b *Bus) Request(ctx context.Context, payload []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	var reply []byte
	call := func(ctx context.Context) error {
		msg, err := b.conn.RequestWithContext(ctx, b.subject, payload)
		if err != nil {
			return fmt.Errorf("nats request: %w", err)
		}
		reply = msg.Data
		return nil
	}

	var err error
	if b.executor != nil {
		err = b.executor.Do(ctx, "nats_request", requestPolicy, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, requestError(err)
	}
	return reply, nil
}

// requestError reports a worker timeout as a deadline and an unreachable broker or
// worker pool as temporary.
func requestError(err error) error {
	if errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return requestPolicy.MarkTemporary("nats request", err)
}

// ServeQueries answers requests on the query subject until ctx is cancelled, then drains.
func (b *Bus) ServeQueries(ctx context.Context, handler func(context.Context, []byte) ([]byte, error)) error {
	sub, err := b.conn.QueueSubscribe(b.subject, b.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		reply := handleMessage(handlerCtx, handler, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			slog.Error("nats_reply_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("nats_queries_subscribed", "subject", b.subject, "queue_group", b.queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type errorReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleMessage always produces a reply body so requesters never wait for a timeout.
func handleMessage(ctx context.Context, handler func(context.Context, []byte) ([]byte, error), data []byte) []byte {
	reply, err := handler(ctx, data)
	if err == nil {
		return reply
	}
	slog.Error("worker_query_failed", "error", err)
	body, marshalErr := json.Marshal(errorReply{Success: false, Error: err.Error()})
	if marshalErr != nil {
		return []byte(`{"success":false,"error":"internal error"}`)
	}
	return body
}
