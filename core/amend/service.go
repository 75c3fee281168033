package amend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

// ChangeNotifier receives a best-effort signal after an amendment is durably
// committed. Failures here never affect the outcome of the amendment.
type ChangeNotifier interface {
	RecordChanged(recordID int64)
}

type AmendmentRequest struct {
	RecordID   int64           `json:"record_id"`
	Field      string          `json:"field"`
	NewValue   json.RawMessage `json:"new_value"`
	Reason     string          `json:"reason"`
	ChangeType string          `json:"change_type"`
}

type AmendmentResult struct {
	Revision         store.Revision  `json:"revision"`
	Reclassification *store.Revision `json:"reclassification,omitempty"`
	Record           *store.LogRecord `json:"record"`
}

// Gateway is the single entry point for amendments. The current record value
// is never edited directly: every accepted change lands as an appended
// revision plus a per-field projection update, committed as one unit.
type Gateway struct {
	db         *store.DB
	records    store.RecordsStore
	revisions  store.RevisionsStore
	guard      *Guard
	validator  *Validator
	classifier ClassificationPolicy
	notifier   ChangeNotifier
	logger     *zap.Logger
	retries    int
}

func NewGateway(db *store.DB, records store.RecordsStore, revisions store.RevisionsStore, guard *Guard, validator *Validator, classifier ClassificationPolicy, notifier ChangeNotifier, logger *zap.Logger, retries int) *Gateway {
	if retries <= 0 {
		retries = 3
	}
	return &Gateway{
		db:         db,
		records:    records,
		revisions:  revisions,
		guard:      guard,
		validator:  validator,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
		retries:    retries,
	}
}

func (g *Gateway) SubmitAmendment(ctx context.Context, caller *store.User, req AmendmentRequest) (*AmendmentResult, error) {
	if caller == nil {
		return nil, errUnauthenticated()
	}
	rec, err := g.records.GetLogRecord(ctx, req.RecordID)
	if err != nil {
		return nil, errPersistence(err)
	}
	if rec == nil {
		return nil, errNotFound()
	}
	elig, err := g.guard.Evaluate(ctx, rec, caller)
	if err != nil {
		return nil, errPersistence(err)
	}
	if !elig.CanAmend {
		return nil, errForbidden(elig.Reason)
	}
	vres := g.validator.Validate(rec, req.Field, req.NewValue, req.Reason, req.ChangeType)
	if !vres.Valid {
		return nil, errInvalid(vres.Violations)
	}
	spec, _ := FieldSpecFor(req.Field)

	actorLabel := caller.DisplayLabel()
	var result *AmendmentResult
	backoff := retry.WithMaxRetries(uint64(g.retries), retry.NewFibonacci(25*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := g.submitTx(ctx, caller, actorLabel, req, spec, vres)
		if err != nil {
			var amendErr *AmendmentError
			if errors.As(err, &amendErr) {
				return err
			}
			g.logger.Warn("amendment commit failed, retrying",
				zap.Int64("record_id", req.RecordID),
				zap.String("field", req.Field),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		var amendErr *AmendmentError
		if errors.As(err, &amendErr) {
			return nil, amendErr
		}
		return nil, errPersistence(err)
	}

	if g.notifier != nil {
		g.notifier.RecordChanged(req.RecordID)
	}
	return result, nil
}

// submitTx performs the whole consistency unit inside one transaction: the
// record is re-read under the tx, the gate conditions re-checked against the
// fresh row, then seq allocation, revision append and projection update all
// commit or roll back together.
func (g *Gateway) submitTx(ctx context.Context, caller *store.User, actorLabel string, req AmendmentRequest, spec FieldSpec, vres ValidationResult) (*AmendmentResult, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	fresh, err := g.records.GetLogRecordTx(ctx, tx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, errNotFound()
	}
	if fresh.Locked {
		return nil, errForbidden("amendments.recordLocked")
	}
	if structEqual(spec.Current(fresh), vres.Normalized) {
		return nil, errInvalid([]string{"amendments.valueUnchanged"})
	}

	seq, err := g.revisions.NextRevisionSeqTx(ctx, tx, req.RecordID)
	if err != nil {
		return nil, err
	}
	primary := store.Revision{
		RecordID:     req.RecordID,
		Seq:          seq,
		FieldChanged: spec.Name,
		OldValue:     mustJSON(spec.Current(fresh)),
		NewValue:     vres.Normalized,
		ChangeReason: req.Reason,
		ChangeType:   req.ChangeType,
		ActorID:      caller.ID,
		ActorLabel:   actorLabel,
	}
	if err := g.revisions.AppendRevisionTx(ctx, tx, &primary); err != nil {
		return nil, err
	}
	if err := g.records.UpdateLogRecordFieldTx(ctx, tx, req.RecordID, spec.Column, vres.StoreValue); err != nil {
		return nil, err
	}

	reclass, err := g.maybeReclassifyTx(ctx, tx, fresh, req, spec, vres, caller, actorLabel)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated, err := g.records.GetLogRecord(ctx, req.RecordID)
	if err != nil {
		g.logger.Warn("post-commit record read failed", zap.Int64("record_id", req.RecordID), zap.Error(err))
	}
	return &AmendmentResult{Revision: primary, Reclassification: reclass, Record: updated}, nil
}

// maybeReclassifyTx appends an engine-generated category revision when an
// amended action text matches the ejection vocabulary and the record is not
// already categorised as an ejection. It rides in the caller's transaction.
func (g *Gateway) maybeReclassifyTx(ctx context.Context, tx *sql.Tx, fresh *store.LogRecord, req AmendmentRequest, spec FieldSpec, vres ValidationResult, caller *store.User, actorLabel string) (*store.Revision, error) {
	if g.classifier == nil || spec.Name != FieldActionTaken {
		return nil, nil
	}
	text, ok := vres.StoreValue.(string)
	if !ok {
		return nil, nil
	}
	category, matched := g.classifier.Classify(text)
	if !matched || fresh.Category == category {
		return nil, nil
	}
	seq, err := g.revisions.NextRevisionSeqTx(ctx, tx, req.RecordID)
	if err != nil {
		return nil, err
	}
	rev := store.Revision{
		RecordID:     req.RecordID,
		Seq:          seq,
		FieldChanged: FieldCategory,
		OldValue:     mustJSON(fresh.Category),
		NewValue:     mustJSON(category),
		ChangeReason: "amendments.autoReclassified",
		ChangeType:   changeTypeReclassification,
		ActorID:      caller.ID,
		ActorLabel:   actorLabel,
	}
	if err := g.revisions.AppendRevisionTx(ctx, tx, &rev); err != nil {
		return nil, err
	}
	if err := g.records.UpdateLogRecordFieldTx(ctx, tx, req.RecordID, "category", category); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (g *Gateway) ListRevisions(ctx context.Context, recordID int64) ([]store.Revision, error) {
	rec, err := g.records.GetLogRecord(ctx, recordID)
	if err != nil {
		return nil, errPersistence(err)
	}
	if rec == nil {
		return nil, errNotFound()
	}
	revs, err := g.revisions.ListRevisions(ctx, recordID)
	if err != nil {
		return nil, errPersistence(err)
	}
	return revs, nil
}

func (g *Gateway) CheckEligibility(ctx context.Context, caller *store.User, recordID int64) (Eligibility, error) {
	if caller == nil {
		return Eligibility{}, errUnauthenticated()
	}
	rec, err := g.records.GetLogRecord(ctx, recordID)
	if err != nil {
		return Eligibility{}, errPersistence(err)
	}
	if rec == nil {
		return Eligibility{}, errNotFound()
	}
	elig, err := g.guard.Evaluate(ctx, rec, caller)
	if err != nil {
		return Eligibility{}, errPersistence(err)
	}
	return elig, nil
}
