package db

import (
	"context"

	"emperror.dev/errors"
)

// ClaimOutcome is the result of recording an inbound activity id in the ledger.
type ClaimOutcome int

const (
	// Claimed means the id was new and the caller must apply its side effects.
	Claimed ClaimOutcome = iota
	// AlreadyProcessed means an earlier delivery already applied them.
	AlreadyProcessed
)

func (o ClaimOutcome) String() string {
	if o == AlreadyProcessed {
		return "already processed"
	}
	return "claimed"
}

const (
	sqlClaimActivity       = `INSERT INTO received_activities(ap_id, received_at) VALUES (?, ?) ON CONFLICT(ap_id) DO NOTHING`
	sqlSelectActivityExist = `SELECT EXISTS(SELECT 1 FROM received_activities WHERE ap_id = ?)`
)

// ClaimActivity atomically records apID. The unique key is the only gate
// between concurrent deliveries of the same activity.
func (db *DB) ClaimActivity(ctx context.Context, apID string) (ClaimOutcome, error) {
	res, err := db.db.ExecContext(ctx, sqlClaimActivity, apID, now())
	if err != nil {
		return Claimed, errors.WithStack(err)
	}
	ok, err := inserted(res)
	if err != nil {
		return Claimed, err
	}
	if !ok {
		return AlreadyProcessed, nil
	}
	return Claimed, nil
}

func (db *DB) ActivityProcessed(ctx context.Context, apID string) (bool, error) {
	var exists bool
	if err := db.db.GetContext(ctx, &exists, sqlSelectActivityExist, apID); err != nil {
		return false, errors.WithStack(err)
	}
	return exists, nil
}
