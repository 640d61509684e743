package jobs

import (
	"context"

	"github.com/campuslink/campuslink-admin/internal/broadcast"
)

// BroadcastDispatcher hands dispatches to the background queue. Enqueue
// success settles the record as sent; enqueue failure settles it as failed.
type BroadcastDispatcher struct {
	client *Client
}

// NewBroadcastDispatcher constructs a dispatcher backed by the jobs client.
func NewBroadcastDispatcher(client *Client) *BroadcastDispatcher {
	return &BroadcastDispatcher{client: client}
}

// Dispatch enqueues exactly one delivery task for the request.
func (d *BroadcastDispatcher) Dispatch(ctx context.Context, req broadcast.DispatchRequest) error {
	payload := BroadcastDeliverPayload{
		RecordID:   req.RecordID,
		Recipients: req.Recipients,
		Sender:     req.Sender,
		Kind:       req.Kind,
		Title:      req.Title,
		Body:       req.Body,
		Severity:   req.Severity,
	}
	_, err := d.client.EnqueueBroadcastDeliver(ctx, payload)
	return err
}
