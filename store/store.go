package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/activesoft/go-backoffice/events"
	"github.com/activesoft/go-backoffice/record"
)

// AuthGate tells the store who is acting. Writes require an actor; reads
// never consult the gate.
type AuthGate interface {
	// Actor returns the acting user id and whether a session is active.
	Actor() (string, bool)
}

// openGate admits everything; it backs stores built without a gate.
type openGate struct{}

func (openGate) Actor() (string, bool) { return "", true }

// ListOptions narrows and orders a FindMany call. A zero value lists the
// whole collection in the backend's natural order.
type ListOptions struct {
	// Filters are ANDed equality conditions keyed by column name.
	Filters map[string]any

	// OrderBy names the sort column; Desc flips the direction.
	OrderBy string
	Desc    bool

	// Limit and Offset page the result. Limit <= 0 means no limit.
	Limit  int
	Offset int

	// Search is a case-insensitive substring match against the store's
	// configured search column. Empty means no search.
	Search string
}

// Page is the result of a FindMany call: one page of records plus the total
// count the filters matched.
type Page[T record.Record] struct {
	Items []T
	Total int
}

// Store provides validated, audited CRUD over one collection. Every write is
// gated on authentication, sanitized, validated, retried on transient
// failures, audited and published as a change event. Reads fail fast.
type Store[T record.Record] struct {
	db           *bun.DB
	table        string
	factory      func() T
	searchColumn string
	immutable    bool
	anonCreate   bool

	gate   AuthGate
	audit  *Audit
	bus    events.Publisher
	logger *slog.Logger
	retry  RetryPolicy
}

// Option customizes a Store.
type Option[T record.Record] func(*Store[T])

// WithSearchColumn names the column FindMany's Search option matches against.
func WithSearchColumn[T record.Record](column string) Option[T] {
	return func(s *Store[T]) { s.searchColumn = column }
}

// WithImmutable rejects Update calls with ErrImmutable. Deletes still work.
func WithImmutable[T record.Record]() Option[T] {
	return func(s *Store[T]) { s.immutable = true }
}

// WithAnonymousCreate lets Create (only) bypass the auth gate. Used for the
// public contact form; every other write path stays gated.
func WithAnonymousCreate[T record.Record]() Option[T] {
	return func(s *Store[T]) { s.anonCreate = true }
}

// WithAuthGate installs the session gate consulted before every write.
func WithAuthGate[T record.Record](gate AuthGate) Option[T] {
	return func(s *Store[T]) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithAudit installs the operation log sink.
func WithAudit[T record.Record](audit *Audit) Option[T] {
	return func(s *Store[T]) { s.audit = audit }
}

// WithPublisher installs the change-event publisher.
func WithPublisher[T record.Record](bus events.Publisher) Option[T] {
	return func(s *Store[T]) { s.bus = bus }
}

// WithRetryPolicy overrides the write retry policy.
func WithRetryPolicy[T record.Record](policy RetryPolicy) Option[T] {
	return func(s *Store[T]) { s.retry = policy }
}

// WithLogger attaches a logger; by default the store logs through slog's
// default handler.
func WithLogger[T record.Record](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a store over one table. factory returns a fresh zero record and
// is used as the scan target for reads.
func New[T record.Record](db *bun.DB, table string, factory func() T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		db:      db,
		table:   table,
		factory: factory,
		gate:    openGate{},
		logger:  slog.Default(),
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("store", table)
	return s
}

// Table returns the collection name the store writes to.
func (s *Store[T]) Table() string { return s.table }

// Create validates and inserts one record, returning it with server-assigned
// id and timestamps.
func (s *Store[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	actor, ok := s.actor()
	if !ok && !s.anonCreate {
		return zero, ErrAuthRequired
	}

	sanitizeRecord(rec)
	if err := rec.Validate(); err != nil {
		return zero, &ValidationError{Err: err}
	}

	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(rec).Exec(ctx)
		return mapError(err)
	})
	if err != nil {
		return zero, err
	}

	s.afterWrite(ctx, actor, events.OpCreate, rec.RecordID())
	return rec, nil
}

// FindByID fetches one record or ErrNotFound. No retry, no gate.
func (s *Store[T]) FindByID(ctx context.Context, id string) (T, error) {
	rec := s.factory()
	err := s.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if err != nil {
		var zero T
		return zero, mapError(err)
	}
	return rec, nil
}

// FindMany lists records matching opts along with the total count the
// filters matched, ignoring pagination.
func (s *Store[T]) FindMany(ctx context.Context, opts ListOptions) (Page[T], error) {
	var items []T
	query := s.db.NewSelect().Model(&items)

	for column, value := range opts.Filters {
		if err := validColumn(column); err != nil {
			return Page[T]{}, err
		}
		query = query.Where("? = ?", bun.Ident(column), value)
	}
	if opts.Search != "" && s.searchColumn != "" {
		pattern := "%" + strings.ToLower(opts.Search) + "%"
		query = query.Where("lower(?) LIKE ?", bun.Ident(s.searchColumn), pattern)
	}
	if opts.OrderBy != "" {
		if err := validColumn(opts.OrderBy); err != nil {
			return Page[T]{}, err
		}
		direction := "ASC"
		if opts.Desc {
			direction = "DESC"
		}
		query = query.OrderExpr("? ?", bun.Ident(opts.OrderBy), bun.Safe(direction))
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return Page[T]{}, mapError(err)
	}
	return Page[T]{Items: items, Total: total}, nil
}

// Update applies a column patch to one record and returns the fresh row.
// The id and created_at columns are never patchable; updated_at is stamped
// server-side. The patched row is re-validated as a whole inside the write
// transaction, so a patch that leaves the record invalid rolls back.
func (s *Store[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	var zero T
	actor, ok := s.actor()
	if !ok {
		return zero, ErrAuthRequired
	}
	if s.immutable {
		return zero, ErrImmutable
	}
	if len(patch) == 0 {
		return zero, &ValidationError{Err: fmt.Errorf("empty patch")}
	}

	clean := sanitizePatch(patch)
	for column := range clean {
		if err := validColumn(column); err != nil {
			return zero, err
		}
		if column == "id" || column == "created_at" {
			return zero, &ValidationError{Err: fmt.Errorf("column %q is not writable", column)}
		}
	}

	var rec T
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			update := tx.NewUpdate().Table(s.table).Where("id = ?", id)
			for column, value := range clean {
				update = update.Set("? = ?", bun.Ident(column), value)
			}
			// Table()-based updates bypass model hooks, so stamp updated_at
			// here.
			update = update.Set("updated_at = ?", time.Now().UTC())

			res, err := update.Exec(ctx)
			if err != nil {
				return mapError(err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrNotFound
			}

			fresh := s.factory()
			if err := tx.NewSelect().Model(fresh).Where("id = ?", id).Scan(ctx); err != nil {
				return mapError(err)
			}
			if err := fresh.Validate(); err != nil {
				return &ValidationError{Err: err}
			}
			rec = fresh
			return nil
		})
	})
	if err != nil {
		return zero, err
	}

	s.afterWrite(ctx, actor, events.OpUpdate, id)
	return rec, nil
}

// Delete removes one record. Deleting a missing id reports ErrNotFound.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	actor, ok := s.actor()
	if !ok {
		return ErrAuthRequired
	}

	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		res, err := s.db.NewDelete().Table(s.table).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return mapError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, actor, events.OpDelete, id)
	return nil
}

// BulkCreate inserts records in one statement. All records are validated
// before any hit the database; one invalid record fails the whole batch.
func (s *Store[T]) BulkCreate(ctx context.Context, recs []T) ([]T, error) {
	actor, ok := s.actor()
	if !ok {
		return nil, ErrAuthRequired
	}
	if len(recs) == 0 {
		return nil, nil
	}

	for i, rec := range recs {
		sanitizeRecord(rec)
		if err := rec.Validate(); err != nil {
			return nil, &ValidationError{Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}

	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(&recs).Exec(ctx)
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, actor, events.OpBulkCreate, "")
	return recs, nil
}

// BulkDelete removes the given ids in one statement and returns how many
// rows existed. Missing ids are not an error here; the count tells.
func (s *Store[T]) BulkDelete(ctx context.Context, ids []string) (int, error) {
	actor, ok := s.actor()
	if !ok {
		return 0, ErrAuthRequired
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		res, err := s.db.NewDelete().Table(s.table).Where("id IN (?)", bun.In(ids)).Exec(ctx)
		if err != nil {
			return mapError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.afterWrite(ctx, actor, events.OpBulkDelete, "")
	return deleted, nil
}

func (s *Store[T]) actor() (string, bool) {
	return s.gate.Actor()
}

// afterWrite records the audit entry and publishes the change event. Neither
// failure mode reaches the caller; the write already committed.
func (s *Store[T]) afterWrite(ctx context.Context, actor string, op events.Op, recordID string) {
	s.audit.Log(actor, s.table, string(op), recordID)
	if s.bus == nil {
		return
	}
	change := events.Change{Table: s.table, Op: op, RecordID: recordID, At: time.Now().UTC()}
	if err := s.bus.Publish(ctx, change); err != nil {
		s.logger.Warn("change event publish failed", "op", op, "error", err)
	}
}

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validColumn guards identifiers that reach the query builder.
func validColumn(column string) error {
	if !columnPattern.MatchString(column) {
		return &ValidationError{Err: fmt.Errorf("invalid column name %q", column)}
	}
	return nil
}
