package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/rabbitmq/amqp091-go"
)

const PUBLISH_TIMEOUT = 5 * time.Second

var ErrPublishNacked = errors.New("broker did not confirm email job")

type publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPMailer publishes email jobs to a durable direct exchange. A separate
// worker renders the template and talks to the mail provider. A Send only
// succeeds once the broker has confirmed the message.
type AMQPMailer struct {
	publisher    publisher
	dial         func() (publisher, error)
	mu           sync.Mutex
	exchangeName string
	queueName    string
	from         string
	now          func() time.Time
}

func NewAMQPMailer(url, exchangeName, queueName, from string) (*AMQPMailer, error) {
	mailer := &AMQPMailer{
		exchangeName: exchangeName,
		queueName:    queueName,
		from:         from,
		now:          time.Now,
	}
	mailer.dial = func() (publisher, error) {
		c, err := dialChannel(url, exchangeName, queueName)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	pub, err := mailer.dial()
	if err != nil {
		return nil, err
	}
	mailer.publisher = pub

	logging.Logger.Infof("AMQP mailer ready, exchange=%s queue=%s", exchangeName, queueName)
	return mailer, nil
}

// connected returns a usable publisher, redialing when the broker dropped the
// previous connection. Callers hold m.mu.
func (m *AMQPMailer) connected() (publisher, error) {
	if m.publisher != nil && !m.publisher.IsClosed() {
		return m.publisher, nil
	}
	if m.publisher != nil {
		m.publisher.Close()
		m.publisher = nil
	}
	if m.dial == nil {
		return nil, amqp091.ErrClosed
	}

	logging.Logger.Warn("AMQP connection is closed, reconnecting...")
	pub, err := m.dial()
	if err != nil {
		return nil, fmt.Errorf("reconnect AMQP: %w", err)
	}
	m.publisher = pub
	logging.Logger.Info("AMQP connection restored")
	return pub, nil
}

func (m *AMQPMailer) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	job := NewEmailJob(m.from, email, m.now())
	body, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PUBLISH_TIMEOUT)
	defer cancel()

	// amqp091 channels are not safe for concurrent publishing.
	m.mu.Lock()
	defer m.mu.Unlock()

	pub, err := m.connected()
	if err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}

	err = pub.Publish(ctx, m.exchangeName, m.queueName, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.Timestamp,
		Type:         email.Template,
		Body:         body,
	})
	if err != nil {
		if errors.Is(err, amqp091.ErrClosed) {
			// next Send redials
			pub.Close()
			m.publisher = nil
		}
		return fmt.Errorf("publish email job: %w", err)
	}

	logging.Logger.Infof("[TraceID=%s] | published email job %s, template=%s to=%s", contextutil.TraceIDFromContext(ctx), job.ID, email.Template, email.To)
	return nil
}

func (m *AMQPMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publisher == nil {
		return nil
	}
	err := m.publisher.Close()
	m.publisher = nil
	return err
}

// confirmChannel is a channel in publisher-confirm mode together with its connection.
type confirmChannel struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func dialChannel(url, exchangeName, queueName string) (*confirmChannel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &confirmChannel{conn: conn, channel: channel}
	if err := channel.Confirm(false); err != nil {
		c.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if err := c.setup(exchangeName, queueName); err != nil {
		c.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return c, nil
}

func (c *confirmChannel) setup(exchangeName, queueName string) error {
	err := c.channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name
	err = c.channel.QueueBind(queueName, queueName, exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *confirmChannel) Publish(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publish confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func (c *confirmChannel) IsClosed() bool {
	return c.conn.IsClosed() || c.channel.IsClosed()
}

func (c *confirmChannel) Close() error {
	c.channel.Close()
	return c.conn.Close()
}
