// Package schemarefresh builds the data model from the live database and
// keeps it current. A background loop fingerprints information_schema and
// swaps in a rebuilt model when the fingerprint changes.
package schemarefresh

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"query-engine/internal/introspection"
	"query-engine/internal/logging"
	"query-engine/internal/models"
	"query-engine/internal/naming"
	"query-engine/internal/observability"
)

// Snapshot is an immutable view of the data model.
type Snapshot struct {
	DataModel   *models.InternalDataModel
	DBSchema    *introspection.Schema
	BuiltAt     time.Time
	Fingerprint string
	// Components holds per-area hashes of the fingerprint.
	Components map[string]string
}

// Config controls schema refresh behavior.
type Config struct {
	Queryer      introspection.Queryer
	DatabaseName string
	Tables       []string
	Naming       naming.Config
	Logger       *logging.Logger
	Metrics      *observability.SchemaRefreshMetrics
	// MinInterval is the polling interval right after a change. Zero
	// disables the background loop.
	MinInterval time.Duration
	// MaxInterval caps the backoff while nothing changes.
	MaxInterval time.Duration
}

// Manager maintains and refreshes data model snapshots.
type Manager struct {
	queryer      introspection.Queryer
	databaseName string
	tables       []string
	namingConfig naming.Config
	logger       *logging.Logger
	metrics      *observability.SchemaRefreshMetrics
	minInterval  time.Duration
	maxInterval  time.Duration
	active       atomic.Pointer[Snapshot]
	wg           sync.WaitGroup
	reloads      singleflight.Group
}

// NewManager builds the initial snapshot and returns a manager.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Queryer == nil {
		return nil, fmt.Errorf("schema refresh manager requires a queryer")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	maxInterval := cfg.MaxInterval
	if maxInterval < cfg.MinInterval {
		maxInterval = cfg.MinInterval
	}

	m := &Manager{
		queryer:      cfg.Queryer,
		databaseName: cfg.DatabaseName,
		tables:       append([]string(nil), cfg.Tables...),
		namingConfig: cfg.Naming,
		logger:       cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		metrics:      cfg.Metrics,
		minInterval:  cfg.MinInterval,
		maxInterval:  maxInterval,
	}

	start := time.Now()
	fingerprint, components, err := m.computeFingerprint(ctx)
	if err != nil {
		m.logger.Warn("failed to compute schema fingerprint", slog.String("error", err.Error()))
	}
	snapshot, err := m.buildSnapshot(ctx, fingerprint, components)
	if err != nil {
		m.metrics.RecordRefresh(ctx, time.Since(start), false, "startup")
		return nil, err
	}
	m.active.Store(snapshot)
	m.metrics.RecordRefresh(ctx, time.Since(start), true, "startup")
	return m, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Current returns the active snapshot.
func (m *Manager) Current() *Snapshot {
	return m.active.Load()
}

// DataModel returns the active data model.
func (m *Manager) DataModel() *models.InternalDataModel {
	if snapshot := m.Current(); snapshot != nil {
		return snapshot.DataModel
	}
	return nil
}

// RefreshNow forces a rebuild and swap. Concurrent callers share one
// rebuild.
func (m *Manager) RefreshNow(ctx context.Context) error {
	_, err, shared := m.reloads.Do("refresh", func() (any, error) {
		return nil, m.refreshNow(ctx)
	})
	if shared {
		m.logger.Debug("joined in-flight schema refresh")
	}
	return err
}

func (m *Manager) refreshNow(ctx context.Context) error {
	start := time.Now()
	fingerprint, components, err := m.computeFingerprint(ctx)
	if err != nil {
		m.metrics.RecordRefresh(ctx, time.Since(start), false, "manual")
		return err
	}
	snapshot, err := m.buildSnapshot(ctx, fingerprint, components)
	if err != nil {
		m.metrics.RecordRefresh(ctx, time.Since(start), false, "manual")
		return err
	}
	m.active.Store(snapshot)
	m.metrics.RecordRefresh(ctx, time.Since(start), true, "manual")
	return nil
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			interval = m.refreshOnce(ctx, interval)
			timer.Reset(interval)
		}
	}
}

// refreshOnce polls the fingerprint and returns the next polling interval.
func (m *Manager) refreshOnce(ctx context.Context, interval time.Duration) time.Duration {
	start := time.Now()
	fingerprint, components, err := m.computeFingerprint(ctx)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		m.metrics.RecordRefresh(ctx, time.Since(start), false, "poll")
		return m.minInterval
	}

	current := m.Current()
	if current != nil && fingerprint == current.Fingerprint {
		m.metrics.RecordRefresh(ctx, time.Since(start), true, "poll_no_change")
		return nextInterval(interval, m.minInterval, m.maxInterval)
	}

	var previous map[string]string
	if current != nil {
		previous = current.Components
	}
	m.logger.Info("schema change detected, rebuilding",
		slog.String("fingerprint", fingerprint),
		slog.Any("changed_components", changedComponents(previous, components)),
	)
	snapshot, err := m.buildSnapshot(ctx, fingerprint, components)
	if err != nil {
		m.logger.Error("failed to rebuild data model", slog.String("error", err.Error()))
		m.metrics.RecordRefresh(ctx, time.Since(start), false, "poll")
		return m.minInterval
	}

	m.active.Store(snapshot)
	m.metrics.RecordRefresh(ctx, time.Since(start), true, "poll")
	m.logger.Info("schema refresh complete", slog.String("fingerprint", fingerprint))
	return m.minInterval
}

func (m *Manager) buildSnapshot(ctx context.Context, fingerprint string, components map[string]string) (*Snapshot, error) {
	start := time.Now()
	m.logger.Info("introspecting database schema")
	result, err := Build(ctx, BuildConfig{
		Queryer:      m.queryer,
		DatabaseName: m.databaseName,
		Tables:       m.tables,
		Naming:       m.namingConfig,
		Logger:       m.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	for _, model := range result.DataModel.Models() {
		m.logger.Debug("model built",
			slog.String("model", model.Name),
			slog.String("table", model.DBName),
			slog.Int("scalar_fields", len(model.ScalarFields())),
			slog.Int("relation_fields", len(model.RelationFields())),
		)
	}
	modelCount := len(result.Schema.Models)
	m.metrics.RecordModelCount(ctx, modelCount)
	m.logger.Info("data model built",
		slog.Int("models", modelCount),
		slog.Int("relations", len(result.Schema.Relations)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Snapshot{
		DataModel:   result.DataModel,
		DBSchema:    result.DBSchema,
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
		Components:  components,
	}, nil
}

var fingerprintComponents = []struct {
	name  string
	query string
}{
	{
		name: "tables",
		query: `
			SELECT TABLE_NAME, TABLE_TYPE
			FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME
		`,
	},
	{
		name: "columns",
		query: `
			SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, EXTRA
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, ORDINAL_POSITION
		`,
	},
	{
		name: "keys",
		query: `
			SELECT TABLE_NAME, CONSTRAINT_NAME, COLUMN_NAME,
				COALESCE(REFERENCED_TABLE_NAME, ''), COALESCE(REFERENCED_COLUMN_NAME, ''),
				CAST(ORDINAL_POSITION AS CHAR)
			FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
		`,
	},
	{
		name: "indexes",
		query: `
			SELECT TABLE_NAME, INDEX_NAME, CAST(NON_UNIQUE AS CHAR),
				CAST(SEQ_IN_INDEX AS CHAR), COALESCE(COLUMN_NAME, '')
			FROM INFORMATION_SCHEMA.STATISTICS
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX
		`,
	},
}

// computeFingerprint hashes the structural metadata the data model is built
// from. Comments and statistics are left out so they never trigger a rebuild.
func (m *Manager) computeFingerprint(ctx context.Context) (string, map[string]string, error) {
	tracer := otel.Tracer("query-engine/introspection")
	ctx, span := tracer.Start(ctx, "introspection.compute_fingerprint")
	defer span.End()
	span.SetAttributes(attribute.String("db.name", m.databaseName))

	components := make(map[string]string, len(fingerprintComponents))
	for _, component := range fingerprintComponents {
		hash, err := hashQuery(ctx, m.queryer, component.query, m.databaseName)
		if err != nil {
			span.RecordError(err)
			return "", nil, fmt.Errorf("failed to hash %s component: %w", component.name, err)
		}
		components[component.name] = hash
	}
	return combineHashes(components), components, nil
}

func hashQuery(ctx context.Context, queryer introspection.Queryer, query string, args ...any) (string, error) {
	rows, err := queryer.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	values := make([]sql.NullString, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	hash := sha256.New()
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return "", err
		}
		// Length-prefixed cells keep delimiters inside values unambiguous.
		for _, value := range values {
			_, _ = fmt.Fprintf(hash, "%d:%s|", len(value.String), value.String)
		}
		_, _ = hash.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func combineHashes(components map[string]string) string {
	keys := make([]string, 0, len(components))
	for key := range components {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(hash, "%s=%s\n", key, components[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func changedComponents(previous, current map[string]string) []string {
	keys := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keys[key] = struct{}{}
	}
	for key := range current {
		keys[key] = struct{}{}
	}
	changed := make([]string, 0, len(keys))
	for key := range keys {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
