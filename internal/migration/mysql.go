package migration

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	binaryCollation   = "utf8mb4_bin"
	mysqlTableOptions = "CHARSET=utf8mb4 COLLATE=" + binaryCollation
)

type columnDef struct {
	table  string
	column string
	size   int
}

// Indicator values are compared exactly. The column collation decides
// equality and uniqueness on mysql, not the connection collation.
var binaryColumns = []columnDef{
	{table: "indicators", column: "value", size: 768},
	{table: "indicators", column: "value_lower", size: 768},
}

func alterCollationSQL(col columnDef) string {
	return fmt.Sprintf("ALTER TABLE ? MODIFY ? VARCHAR(%d) CHARACTER SET utf8mb4 COLLATE %s NOT NULL", col.size, binaryCollation)
}

// ensureBinaryCollation converts columns created under a case-insensitive
// collation, such as tables that predate the table options.
func ensureBinaryCollation(conn *gorm.DB) error {
	for _, col := range binaryColumns {
		var current string
		err := conn.Raw(
			"SELECT COLLATION_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?",
			col.table, col.column,
		).Scan(&current).Error
		if err != nil {
			return fmt.Errorf("read collation %s.%s: %w", col.table, col.column, err)
		}
		if current == binaryCollation {
			continue
		}

		if err := conn.Exec(alterCollationSQL(col), clause.Table{Name: col.table}, clause.Column{Name: col.column}).Error; err != nil {
			return fmt.Errorf("set collation %s.%s: %w", col.table, col.column, err)
		}
	}
	return nil
}
