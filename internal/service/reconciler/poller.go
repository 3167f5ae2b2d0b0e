package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
)

const (
	defaultCountWorkers    = 5                // Number of workers resolving pending intents
	defaultProduceInterval = 5 * time.Second  // Interval between due-transaction scans
	defaultBatchSize       = 100              // Max rows per scan
	defaultBackoffBase     = 5 * time.Second  // First reschedule delay
	defaultMaxBackoff      = 10 * time.Minute // Reschedule delay cap
	defaultMaxAttempts     = 12               // After this, only the webhook can close the row
)

type intentClient interface {
	GetIntentStatus(ctx context.Context, intentID string) (gateway.IntentStatus, error)
}

// Poller is the background replacement for wait-then-check: intents are
// created and answered PENDING immediately, and this loop resolves them
// with capped exponential backoff. The webhook path stays authoritative;
// the poller only covers callbacks that never arrive.
type Poller struct {
	consumer *pollConsumer
	producer *pollProducer
}

func NewPoller(client intentClient, storage repository.Storage, reconciler *Service, l logger.Logger) *Poller {
	return &Poller{
		consumer: &pollConsumer{
			countWorkers: defaultCountWorkers,
			client:       client,
			storage:      storage,
			reconciler:   reconciler,
			logger:       l,
		},
		producer: &pollProducer{
			interval:  defaultProduceInterval,
			batchSize: defaultBatchSize,
			storage:   storage,
			logger:    l,
		},
	}
}

// Run starts the scan loop and the worker pool. The returned channel
// closes once both have drained after ctx cancellation.
func (p *Poller) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	dueChan := make(chan models.Transaction)

	producerStopped := p.producer.produce(ctx, dueChan)
	consumerStopped := p.consumer.consume(ctx, dueChan)

	go func() {
		defer close(idleStopped)
		defer close(dueChan)
		<-producerStopped
		<-consumerStopped
		p.consumer.logger.Debug("Poller stopped")
	}()

	return idleStopped
}

type pollProducer struct {
	interval  time.Duration
	batchSize int
	storage   repository.Storage
	logger    logger.Logger
}

func (p *pollProducer) produce(ctx context.Context, out chan<- models.Transaction) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting poll producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Poll producer stopped by context")
				return

			case <-ticker.C:
				due, err := p.storage.Transaction().ListDue(ctx, time.Now(), p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list due transactions", "error", err)
					continue
				}

				for _, tr := range due {
					select {
					case <-ctx.Done():
						p.logger.Debug("Poll producer stopped by context while sending")
						return
					case out <- tr:
					}
				}
			}
		}
	}()

	return idleStopped
}

type pollConsumer struct {
	countWorkers int

	client     intentClient
	storage    repository.Storage
	reconciler *Service
	logger     logger.Logger
}

func (c *pollConsumer) consume(ctx context.Context, in <-chan models.Transaction) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Poll consumer stopped")
	}()

	return idleStopped
}

func (c *pollConsumer) worker(ctx context.Context, in <-chan models.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return

		case tr, ok := <-in:
			if !ok {
				c.logger.Debug("Poll worker stopped, input channel closed")
				return
			}
			c.check(ctx, tr)
		}
	}
}

// check asks the partner for the intent status and feeds the answer to
// the same transition function the webhook uses. Anything short of a
// terminal outcome reschedules the row with backoff.
func (c *pollConsumer) check(ctx context.Context, tr models.Transaction) {
	if tr.ExternalRef == nil {
		return
	}

	intent, err := c.client.GetIntentStatus(ctx, *tr.ExternalRef)
	if err != nil {
		c.logger.Warn("Intent status check failed", "error", err, "transaction_id", tr.ID)
		c.reschedule(ctx, tr)
		return
	}

	result, err := c.reconciler.Reconcile(ctx, *tr.ExternalRef, intent.Status)
	if err != nil {
		c.logger.Error("Failed to reconcile polled transaction", "error", err, "transaction_id", tr.ID)
		c.reschedule(ctx, tr)
		return
	}

	if !result.IsTerminal() {
		c.reschedule(ctx, tr)
	}
}

// reschedule books the next check at base * 2^attempts, capped. Once
// the attempt budget runs out the row stops polling and waits for the
// partner callback.
func (c *pollConsumer) reschedule(ctx context.Context, tr models.Transaction) {
	if tr.CheckAttempts >= defaultMaxAttempts {
		c.logger.Warn("Poll attempts exhausted, leaving transaction to the webhook",
			"transaction_id", tr.ID, "attempts", tr.CheckAttempts)

		if err := c.storage.Transaction().Reschedule(ctx, tr.ID, nil); err != nil {
			c.logger.Error("Failed to stop polling", "error", err, "transaction_id", tr.ID)
		}
		return
	}

	delay := defaultBackoffBase << tr.CheckAttempts
	if delay > defaultMaxBackoff {
		delay = defaultMaxBackoff
	}

	next := time.Now().Add(delay)
	if err := c.storage.Transaction().Reschedule(ctx, tr.ID, &next); err != nil {
		c.logger.Error("Failed to reschedule transaction", "error", err, "transaction_id", tr.ID)
	}
}
