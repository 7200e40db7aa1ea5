// Package bus carries pipeline jobs from the API process to workers over a
// NATS JetStream work queue.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	ErrNotConnected = errors.New("bus: not connected")
	ErrMalformedJob = errors.New("bus: malformed job")
)

// Job asks a worker to execute one pipeline run.
type Job struct {
	RunID       string    `json:"run_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// DecodeJob parses a queue payload. Payloads without a run ID are malformed.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.RunID == "" {
		return Job{}, fmt.Errorf("%w: missing run_id", ErrMalformedJob)
	}
	return job, nil
}

// Delivery describes the queue message a job arrived in.
type Delivery struct {
	Subject string
	Attempt uint64 // 1 on first delivery
}

// Bus is a JetStream connection that publishes and consumes jobs.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Dial connects to the NATS server at url under the given client name. The
// connection reconnects indefinitely once established; opts override that.
func Dial(url, name string, opts ...nats.Option) (*Bus, error) {
	opts = append([]nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.Timeout(2 * time.Second),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Bus{conn: nc, js: js}, nil
}

// Close drains pending publishes and consumers, then closes the connection.
func (b *Bus) Close() {
	if b == nil || b.conn.IsClosed() {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Connected reports whether the connection is currently usable.
func (b *Bus) Connected() bool {
	return b != nil && b.conn.IsConnected()
}

// EnsureStream creates a work-queue stream for subjects unless a stream with
// that name already exists. Each job is delivered to one worker and removed
// once acknowledged; a job resubmitted within two minutes is dropped as a
// duplicate.
func (b *Bus) EnsureStream(name string, subjects ...string) error {
	if b == nil {
		return ErrNotConnected
	}
	if _, err := b.js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		MaxAge:     24 * time.Hour,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

// PublishJob enqueues job on subject. The run ID is the JetStream message ID,
// so a run submitted twice is queued once.
func (b *Bus) PublishJob(ctx context.Context, subject string, job Job) error {
	if b == nil {
		return ErrNotConnected
	}
	if job.RunID == "" {
		return fmt.Errorf("%w: missing run_id", ErrMalformedJob)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if _, err := b.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(job.RunID)); err != nil {
		return fmt.Errorf("publish run %s: %w", job.RunID, err)
	}
	return nil
}

// JobHandler executes one job. A nil return acknowledges the message; an
// error asks for redelivery after ConsumerConfig.RetryDelay.
type JobHandler func(ctx context.Context, job Job, d Delivery) error

// ConsumerConfig describes a durable job consumer.
type ConsumerConfig struct {
	Subject string
	Durable string
	// AckWait is how long an unacknowledged job stays invisible. While a
	// handler runs the job is kept alive at half this interval, so AckWait
	// only bounds how long a crashed worker holds a job.
	AckWait    time.Duration
	MaxDeliver int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func (c *ConsumerConfig) defaults() {
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConsumeJobs subscribes a durable consumer and runs handle for each job, one
// at a time. Malformed payloads are terminated rather than redelivered.
// Consumption stops when ctx is cancelled or the returned closer is closed.
func (b *Bus) ConsumeJobs(ctx context.Context, cfg ConsumerConfig, handle JobHandler) (io.Closer, error) {
	if b == nil {
		return nil, ErrNotConnected
	}
	if handle == nil {
		return nil, errors.New("bus: nil job handler")
	}
	cfg.defaults()

	onMsg := func(msg *nats.Msg) {
		job, err := DecodeJob(msg.Data)
		if err != nil {
			cfg.Logger.Error("terminating malformed job", "subject", msg.Subject, "payload", string(msg.Data), "error", err)
			_ = msg.Term()
			return
		}
		d := Delivery{Subject: msg.Subject, Attempt: 1}
		if meta, err := msg.Metadata(); err == nil {
			d.Attempt = meta.NumDelivered
		}

		jobCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := keepAlive(msg, cfg.AckWait/2)
		err = handle(jobCtx, job, d)
		stop()

		if err != nil {
			_ = msg.NakWithDelay(cfg.RetryDelay)
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(cfg.Subject, onMsg,
		nats.Durable(cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(cfg.AckWait),
		nats.MaxDeliver(cfg.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}

	c := &consumer{sub: sub}
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return c, nil
}

// keepAlive reports the job as in progress every interval until stop is
// called.
func keepAlive(msg *nats.Msg, every time.Duration) (stop func()) {
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

type consumer struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (c *consumer) Close() error {
	c.once.Do(func() { c.err = c.sub.Drain() })
	return c.err
}
