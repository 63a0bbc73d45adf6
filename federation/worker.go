package federation

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize   = 50
	maxAttempts = 10
	parallelism = 8
)

// backoff is indexed by the number of failed attempts, capped at the last entry.
var backoff = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// Worker drains the delivery queue.
type Worker struct {
	store    Store
	client   *Client
	interval time.Duration
	log      zerolog.Logger
}

func NewWorker(store Store, client *Client, conf *util.AppConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		store:    store,
		client:   client,
		interval: conf.DeliveryTick(),
		log:      logger.With().Str("component", "delivery").Logger(),
	}
}

// Run processes the queue every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting delivery worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Delivery worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessQueue(ctx); err != nil {
				w.log.Error().Err(err).Msg("Failed to process delivery queue")
			}
		}
	}
}

// ProcessQueue attempts every due delivery once and returns how many it tried.
func (w *Worker) ProcessQueue(ctx context.Context) (int, error) {
	items, err := w.store.ReadPendingDeliveries(ctx, batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read queue")
	}
	if len(items) == 0 {
		return 0, nil
	}
	w.log.Debug().Int("count", len(items)).Msg("Processing pending deliveries")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range items {
		item := &items[i]
		g.Go(func() error {
			return w.attempt(gctx, item)
		})
	}
	return len(items), g.Wait()
}

// attempt sends one item and reschedules or drops it. Only queue
// bookkeeping errors are returned.
func (w *Worker) attempt(ctx context.Context, item *domain.DeliveryQueueItem) error {
	log := w.log.With().Str("inbox", item.InboxURI).Str("delivery", item.Id.String()).Logger()

	sender, err := w.store.UserById(ctx, item.SenderId)
	if domain.IsNotFound(err) {
		log.Warn().Msg("Dropping delivery of a deleted sender")
		return w.store.DeleteDelivery(ctx, item.Id)
	}
	if err != nil {
		return err
	}

	err = w.client.Post(ctx, sender, item.InboxURI, []byte(item.ActivityJSON))
	if err == nil {
		log.Info().Msg("Delivered activity")
		return w.store.DeleteDelivery(ctx, item.Id)
	}

	item.Attempts++
	var status *StatusError
	if errors.As(err, &status) && status.Permanent() {
		log.Warn().Err(err).Msg("Giving up on delivery after permanent failure")
		return w.store.DeleteDelivery(ctx, item.Id)
	}
	if item.Attempts >= maxAttempts {
		log.Warn().Err(err).Int("attempts", item.Attempts).Msg("Giving up on delivery")
		return w.store.DeleteDelivery(ctx, item.Id)
	}

	wait := backoff[min(item.Attempts-1, len(backoff)-1)]
	log.Info().Err(err).Int("attempts", item.Attempts).Dur("retry_in", wait).Msg("Delivery failed")
	return w.store.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, time.Now().Add(wait))
}
