package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Stage is one versioned transformation step. Lightweight stages carry
// only a structural Apply with explicitly enumerated column mappings;
// custom stages additionally run WillMigrate against the pre-migration
// shape and DidMigrate against the post-migration shape.
type Stage struct {
	From int
	To   int

	// Apply performs the structural change (columns added with defaults,
	// removed, renamed). Mappings are enumerated explicitly, never
	// derived by reflection over old rows.
	Apply func(tx *gorm.DB) error

	// WillMigrate runs before Apply with access to the pre-migration
	// store.
	WillMigrate func(tx *gorm.DB) error

	// DidMigrate runs after Apply with access to the post-migration
	// store, used for semantic backfills.
	DidMigrate func(tx *gorm.DB) error
}

// Lightweight builds a structural-only stage.
func Lightweight(from, to int, apply func(tx *gorm.DB) error) Stage {
	return Stage{From: from, To: to, Apply: apply}
}

// Custom builds a stage with data-transforming hooks around the
// structural change. Any of the funcs may be nil.
func Custom(from, to int, apply, will, did func(tx *gorm.DB) error) Stage {
	return Stage{From: from, To: to, Apply: apply, WillMigrate: will, DidMigrate: did}
}

// Plan is an ordered list of stages for one schema component, tracked
// independently in the version metadata table. A store that has never
// seen the plan is bootstrapped straight to the latest shape instead of
// replaying history.
type Plan struct {
	Name   string
	Latest int

	// GuardTable, when set, must not already exist on a store that has no
	// version record for this plan. Its presence means the store predates
	// version tracking or the metadata was lost; bootstrapping over it
	// would skip the stages that make the existing rows valid.
	GuardTable string

	Bootstrap func(tx *gorm.DB) error
	Stages    []Stage
}

// SchemaVersion records which migration stage was last applied for a
// plan.
type SchemaVersion struct {
	ID        uint   `gorm:"primarykey"`
	Plan      string `gorm:"uniqueIndex;not null"`
	Version   int    `gorm:"not null"`
	AppliedAt time.Time
}

func (SchemaVersion) TableName() string { return "schema_versions" }

// Run applies all plans in order against an opened database. It must
// complete before any query or insert is permitted; any stage or hook
// failure aborts store initialization. There is no rollback path: partial
// schema state is considered unrecoverable, so failure here is fatal to
// the caller rather than a degraded mode.
//
// Re-invoking Run against an already-migrated store is a no-op: stages
// whose To version is at or below the recorded version are skipped.
func Run(db *gorm.DB, plans ...Plan) error {
	if err := db.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("failed to create version metadata table: %w", err)
	}
	for _, p := range plans {
		if err := runPlan(db, p); err != nil {
			return fmt.Errorf("migration plan %q: %w", p.Name, err)
		}
	}
	return nil
}

func runPlan(db *gorm.DB, p Plan) error {
	var rec SchemaVersion
	err := db.Where("plan = ?", p.Name).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if p.GuardTable != "" && db.Migrator().HasTable(p.GuardTable) {
			return fmt.Errorf("table %s exists but no schema version is recorded", p.GuardTable)
		}
		// Fresh store: create the latest shape directly.
		slog.Info("bootstrapping schema", "plan", p.Name, "version", p.Latest)
		if p.Bootstrap != nil {
			if err := p.Bootstrap(db); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
		}
		return setVersion(db, p.Name, p.Latest)
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	current := rec.Version
	for _, st := range p.Stages {
		if current >= st.To {
			continue
		}
		if current != st.From {
			return fmt.Errorf("store at version %d, stage expects %d", current, st.From)
		}
		slog.Info("applying migration stage", "plan", p.Name, "from", st.From, "to", st.To)
		if st.WillMigrate != nil {
			if err := st.WillMigrate(db); err != nil {
				return fmt.Errorf("stage %d->%d willMigrate: %w", st.From, st.To, err)
			}
		}
		if st.Apply != nil {
			if err := st.Apply(db); err != nil {
				return fmt.Errorf("stage %d->%d: %w", st.From, st.To, err)
			}
		}
		// DidMigrate failure aborts initialization like any other stage
		// error; continuing against a half-backfilled shape is worse than
		// a hard failure.
		if st.DidMigrate != nil {
			if err := st.DidMigrate(db); err != nil {
				return fmt.Errorf("stage %d->%d didMigrate: %w", st.From, st.To, err)
			}
		}
		if err := setVersion(db, p.Name, st.To); err != nil {
			return err
		}
		current = st.To
	}
	return nil
}

func setVersion(db *gorm.DB, plan string, v int) error {
	now := time.Now()
	res := db.Model(&SchemaVersion{}).
		Where("plan = ?", plan).
		Updates(map[string]any{"version": v, "applied_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to record schema version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		rec := SchemaVersion{Plan: plan, Version: v, AppliedAt: now}
		if err := db.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// Version returns the recorded version for a plan, zero when the plan has
// never been applied.
func Version(db *gorm.DB, plan string) (int, error) {
	var rec SchemaVersion
	err := db.Where("plan = ?", plan).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.Version, nil
}
