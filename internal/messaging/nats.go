// Package messaging provides the task dispatch boundary over NATS
// JetStream. Updates are fire-and-forget tasks delivered at least once;
// the ingestion pipeline stays idempotent under redelivery.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
)

const (
	updatesStream     = "UPDATES"
	subjectInstrument = "updates.instrument"
	subjectAll        = "updates.all"
	updateQueueGroup  = "updaters"
)

// UpdateTask is the payload of one enqueued update. An empty InstrumentID
// means a source-wide sweep over all active instruments.
type UpdateTask struct {
	CorrelationID string                `json:"correlation_id"`
	InstrumentID  string                `json:"instrument_id,omitempty"`
	Options       provider.FetchOptions `json:"options"`
	EnqueuedAt    time.Time             `json:"enqueued_at"`
}

// TaskClient handles NATS task dispatch and consumption.
type TaskClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	sub    *nats.Subscription
	logger *logrus.Entry
	cfg    *config.NATSConfig
}

// NewTaskClient connects to NATS and ensures the UPDATES stream exists.
func NewTaskClient(cfg *config.NATSConfig, log *logrus.Logger) (*TaskClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	tc := &TaskClient{
		conn:   conn,
		js:     js,
		logger: log.WithField("component", "nats"),
		cfg:    cfg,
	}

	if err := tc.initializeStream(); err != nil {
		conn.Close()
		return nil, err
	}

	return tc, nil
}

// initializeStream creates the durable task stream. File storage keeps
// queued tasks across broker restarts.
func (tc *TaskClient) initializeStream() error {
	_, err := tc.js.AddStream(&nats.StreamConfig{
		Name:     updatesStream,
		Subjects: []string{"updates.>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create %s stream: %w", updatesStream, err)
	}
	return nil
}

// EnqueueInstrumentUpdate enqueues an update task for one instrument and
// returns the correlation id immediately.
func (tc *TaskClient) EnqueueInstrumentUpdate(ctx context.Context, instrumentID string, opts provider.FetchOptions) (string, error) {
	task := &UpdateTask{
		CorrelationID: uuid.NewString(),
		InstrumentID:  instrumentID,
		Options:       opts,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := tc.publish(ctx, subjectInstrument, task); err != nil {
		return "", err
	}
	return task.CorrelationID, nil
}

// EnqueueAllUpdate enqueues a source-wide update sweep and returns its
// correlation id.
func (tc *TaskClient) EnqueueAllUpdate(ctx context.Context, opts provider.FetchOptions) (string, error) {
	task := &UpdateTask{
		CorrelationID: uuid.NewString(),
		Options:       opts,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := tc.publish(ctx, subjectAll, task); err != nil {
		return "", err
	}
	return task.CorrelationID, nil
}

func (tc *TaskClient) publish(ctx context.Context, subject string, task *UpdateTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal update task: %w", err)
	}

	if _, err := tc.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish update task: %w", err)
	}

	tc.logger.WithFields(logrus.Fields{
		"subject":        subject,
		"correlation_id": task.CorrelationID,
		"instrument_id":  task.InstrumentID,
	}).Debug("Enqueued update task")
	return nil
}

// SubscribeUpdateTasks consumes update tasks in a queue group, so at most
// one worker across all processes handles each task. The handler runs to
// completion before the message is acknowledged; a worker killed mid-task
// leads to redelivery, which the pipeline's idempotence absorbs.
func (tc *TaskClient) SubscribeUpdateTasks(handler func(ctx context.Context, task *UpdateTask)) error {
	sub, err := tc.js.QueueSubscribe("updates.>", updateQueueGroup, func(msg *nats.Msg) {
		var task UpdateTask
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			tc.logger.WithError(err).Error("Failed to decode update task, dropping")
			_ = msg.Ack()
			return
		}

		handler(context.Background(), &task)

		if err := msg.Ack(); err != nil {
			tc.logger.WithError(err).Warn("Failed to ack update task")
		}
	}, nats.ManualAck(), nats.Durable(updateQueueGroup))
	if err != nil {
		return fmt.Errorf("failed to subscribe to update tasks: %w", err)
	}

	tc.sub = sub
	return nil
}

// IsConnected checks if NATS is connected.
func (tc *TaskClient) IsConnected() bool {
	return tc.conn.IsConnected()
}

// Close drains the subscription and closes the connection.
func (tc *TaskClient) Close() error {
	if tc.sub != nil {
		_ = tc.sub.Unsubscribe()
	}
	tc.conn.Close()
	return nil
}
