package migration

import (
	"fmt"
	"strings"

	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
	malwaredomain "github.com/smallbiznis/threatintel/internal/malware/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type indexDef struct {
	model   any
	table   string
	name    string
	unique  bool
	columns string
}

// Index names are quoted on creation so mixed case survives postgres folding.
var indexes = []indexDef{
	{model: &indicatordomain.Indicator{}, table: "indicators", name: "ux_indicators_value", unique: true, columns: "value"},
	{model: &indicatordomain.Indicator{}, table: "indicators", name: "ix_indicator_valueLower", columns: "value_lower"},
	{model: &malwaredomain.Malware{}, table: "malware", name: "ux_malware_slug", unique: true, columns: "slug"},
	{model: &malwaredomain.Malware{}, table: "malware", name: "ix_malware_updated_date", columns: "updated_date DESC"},
	{model: &malwaredomain.MalwareIndicator{}, table: "malware_indicators", name: "ix_malware_indicators_indicator_id", columns: "indicator_id"},
}

// Prepare creates the schema for the connected dialect and ensures indexes.
// Postgres goes through the versioned migrations; other dialects use AutoMigrate.
func Prepare(conn *gorm.DB) error {
	models := []any{
		&indicatordomain.Indicator{},
		&malwaredomain.Malware{},
		&malwaredomain.MalwareIndicator{},
	}

	switch strings.ToLower(conn.Dialector.Name()) {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if _, err := RunMigrations(sqlDB); err != nil {
			return err
		}
	case "mysql":
		if err := conn.Set("gorm:table_options", mysqlTableOptions).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := ensureBinaryCollation(conn); err != nil {
			return err
		}
	default:
		if err := conn.AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	return EnsureIndexes(conn)
}

// EnsureIndexes creates every missing index. Safe to call repeatedly.
func EnsureIndexes(conn *gorm.DB) error {
	migrator := conn.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}

		kind := "INDEX"
		if idx.unique {
			kind = "UNIQUE INDEX"
		}
		stmt := fmt.Sprintf("CREATE %s ? ON ? (%s)", kind, idx.columns)
		if err := conn.Exec(stmt, clause.Column{Name: idx.name}, clause.Table{Name: idx.table}).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
