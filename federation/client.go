// Package federation moves activities between this instance and remote
// servers: signed delivery through a persistent queue, object fetches and
// signature verification of inbound requests.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	contentType = "application/activity+json"
	acceptTypes = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	maxDocumentBytes = 1 << 20
)

type Store interface {
	EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
	UserById(ctx context.Context, id string) (*domain.User, error)
}

// StatusError is a non-2xx answer from a remote server.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: remote server returned status %d", e.Method, e.URL, e.Code)
}

// Permanent reports whether retrying cannot help.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests
}

// Client fetches remote objects and queues outbound activities.
type Client struct {
	store Store
	http  *http.Client
	log   zerolog.Logger
}

func NewClient(store Store, logger zerolog.Logger) *Client {
	return &Client{
		store: store,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   logger.With().Str("component", "federation").Logger(),
	}
}

// Dereference fetches iri as an ActivityPub document and decodes it into into.
func (c *Client) Dereference(ctx context.Context, iri string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", acceptTypes)
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: http.MethodGet, URL: iri, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(into); err != nil {
		return errors.Wrapf(err, "failed to decode %s", iri)
	}
	c.log.Debug().Str("iri", iri).Msg("Fetched remote object")
	return nil
}

// Deliver queues one copy of activity per inbox. The Worker signs and sends them.
func (c *Client) Deliver(ctx context.Context, sender *domain.User, activity any, inboxes []string) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return errors.Wrap(err, "failed to marshal activity")
	}
	for _, inbox := range inboxes {
		item := &domain.DeliveryQueueItem{
			SenderId:     sender.Id,
			InboxURI:     inbox,
			ActivityJSON: string(body),
		}
		if err := c.store.EnqueueDelivery(ctx, item); err != nil {
			return errors.Wrapf(err, "failed to queue delivery to %s", inbox)
		}
	}
	return nil
}

// Post signs body with the sender's key and POSTs it to inbox.
func (c *Client) Post(ctx context.Context, sender *domain.User, inbox string, body []byte) error {
	privateKey, err := ParsePrivateKey(sender.PrivateKeyPem)
	if err != nil {
		return errors.Wrapf(err, "failed to load key of %s", sender.APId)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", util.UserAgent())

	if err := SignRequest(req, body, privateKey, sender.APId+"#main-key"); err != nil {
		return errors.Wrap(err, "failed to sign request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: http.MethodPost, URL: inbox, Code: resp.StatusCode}
	}
	return nil
}
