package verify

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/config"
	"github.com/DavidCapener182/incommand-sub013/core/amend"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

// Drift is one detected disagreement between a record's current field value
// and the newest revision recorded for that field.
type Drift struct {
	RecordID int64
	Field    string
	Current  json.RawMessage
	Expected json.RawMessage
}

// Verifier periodically sweeps every revised record and checks that each
// field's projected value matches the latest revision for that field. Drift
// means the projection and the ledger diverged; it is logged, never repaired
// automatically.
type Verifier struct {
	cfg       config.VerifierConfig
	records   store.RecordsStore
	revisions store.RevisionsStore
	logger    *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewVerifier(cfg config.VerifierConfig, records store.RecordsStore, revisions store.RevisionsStore, logger *zap.Logger) *Verifier {
	return &Verifier{cfg: cfg, records: records, revisions: revisions, logger: logger}
}

func (v *Verifier) StartWithContext(ctx context.Context) error {
	if v == nil || !v.cfg.Enabled {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return nil
	}
	c := cron.New()
	schedule := v.cfg.Schedule
	if schedule == "" {
		schedule = "@every 15m"
	}
	if _, err := c.AddFunc(schedule, func() {
		if _, err := v.RunOnce(ctx); err != nil {
			v.logger.Error("history verification sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	v.cron = c
	v.running = true
	return nil
}

func (v *Verifier) StopWithContext(ctx context.Context) error {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	c := v.cron
	v.cron = nil
	v.running = false
	v.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Verifier) RunOnce(ctx context.Context) ([]Drift, error) {
	ids, err := v.revisions.ListRevisedRecordIDs(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, id := range ids {
		found, err := v.verifyRecord(ctx, id)
		if err != nil {
			return drifts, err
		}
		drifts = append(drifts, found...)
	}
	if len(drifts) == 0 {
		v.logger.Debug("history verification clean", zap.Int("records", len(ids)))
	}
	return drifts, nil
}

func (v *Verifier) verifyRecord(ctx context.Context, recordID int64) ([]Drift, error) {
	rec, err := v.records.GetLogRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// record rows are never deleted; orphan revisions are drift themselves
		v.logger.Error("revisions reference a missing record", zap.Int64("record_id", recordID))
		return nil, nil
	}
	revs, err := v.revisions.ListRevisions(ctx, recordID)
	if err != nil {
		return nil, err
	}
	latest := map[string]json.RawMessage{}
	for _, rev := range revs {
		latest[rev.FieldChanged] = rev.NewValue
	}
	var drifts []Drift
	for field, expected := range latest {
		spec, ok := amend.FieldSpecFor(field)
		if !ok {
			continue
		}
		current, err := json.Marshal(spec.Current(rec))
		if err != nil {
			return drifts, err
		}
		if !jsonEqual(current, expected) {
			v.logger.Error("projection drift detected",
				zap.Int64("record_id", recordID),
				zap.String("field", field),
				zap.ByteString("current", current),
				zap.ByteString("expected", expected))
			drifts = append(drifts, Drift{RecordID: recordID, Field: field, Current: current, Expected: expected})
		}
	}
	return drifts, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
