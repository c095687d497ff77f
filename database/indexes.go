package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, hash, gin, gist
}

// PerformanceIndexes индексы для оптимизации производительности
var PerformanceIndexes = []DatabaseIndex{
	// Индексы для таблицы devices
	{
		Name:    "idx_devices_status",
		Table:   "devices",
		Columns: []string{"device_status"},
		Type:    "btree",
	},
	{
		Name:    "idx_devices_model",
		Table:   "devices",
		Columns: []string{"model_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_devices_owner",
		Table:   "devices",
		Columns: []string{"owner_id"},
		Type:    "btree",
	},

	// Индексы для таблицы deployments: проверка пересечений окон
	// фильтрует по устройству и границам окна
	{
		Name:    "idx_deployments_device_window",
		Table:   "deployments",
		Columns: []string{"device_id", "deployment_start", "deployment_end"},
		Type:    "btree",
	},
	{
		Name:    "idx_deployments_site",
		Table:   "deployments",
		Columns: []string{"site_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_deployments_owner",
		Table:   "deployments",
		Columns: []string{"owner_id"},
		Type:    "btree",
	},

	// Индексы для таблицы data_files
	{
		Name:    "idx_data_files_deployment_recording",
		Table:   "data_files",
		Columns: []string{"deployment_id", "recording_dt"},
		Type:    "btree",
	},
	{
		Name:    "idx_data_files_deployment_name",
		Table:   "data_files",
		Columns: []string{"deployment_id", "file_name", "file_format"},
		Unique:  true,
		Type:    "btree",
	},
	{
		Name:    "idx_data_files_quality_status",
		Table:   "data_files",
		Columns: []string{"quality_check_status"},
		Type:    "btree",
	},
	{
		Name:    "idx_data_files_upload",
		Table:   "data_files",
		Columns: []string{"upload_dt"},
		Type:    "btree",
	},

	// Индексы для таблицы observations
	{
		Name:    "idx_observations_owner",
		Table:   "observations",
		Columns: []string{"owner_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_observations_taxon",
		Table:   "observations",
		Columns: []string{"taxon_code"},
		Type:    "btree",
	},

	// Индексы для таблицы notification_logs
	{
		Name:    "idx_notification_logs_status",
		Table:   "notification_logs",
		Columns: []string{"status"},
		Type:    "btree",
	},

	// Индексы для полнотекстового поиска (GIN)
	{
		Name:    "idx_sites_fulltext",
		Table:   "sites",
		Columns: []string{"name", "short_name"},
		Type:    "gin",
	},
	{
		Name:    "idx_users_fulltext",
		Table:   "users",
		Columns: []string{"first_name", "last_name", "email"},
		Type:    "gin",
	},
}

// CreatePerformanceIndexes создает индексы для оптимизации производительности
func CreatePerformanceIndexes(db *gorm.DB) error {
	log.Printf("Creating performance indexes...")

	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("Failed to create index %s: %v", index.Name, err)
			// Продолжаем создание других индексов даже если один упал
			continue
		}
		log.Printf("Created index: %s", index.Name)
	}

	log.Printf("Performance indexes creation completed")
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	var sql string

	switch index.Type {
	case "gin":
		// Для полнотекстового поиска
		if len(index.Columns) == 2 {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('russian', COALESCE(%s, '') || ' ' || COALESCE(%s, '')))",
				index.Name, index.Table, index.Columns[0], index.Columns[1],
			)
		} else {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('russian', %s))",
				index.Name, index.Table, index.Columns[0],
			)
		}
	default:
		// Обычные B-tree индексы
		uniqueStr := ""
		if index.Unique {
			uniqueStr = "UNIQUE "
		}

		columns := ""
		for i, col := range index.Columns {
			if i > 0 {
				columns += ", "
			}
			columns += col
		}

		sql = fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			uniqueStr, index.Name, index.Table, columns,
		)
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}

// GetIndexInfo получает информацию об индексах таблицы
func GetIndexInfo(db *gorm.DB, tableName string) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	sql := `
		SELECT 
			indexname as name,
			tablename as table_name,
			indexdef as definition
		FROM pg_indexes 
		WHERE tablename = ? 
		AND schemaname = current_schema()
		ORDER BY indexname
	`

	rows, err := db.Raw(sql, tableName).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, definition string
		if err := rows.Scan(&name, &table, &definition); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"name":       name,
			"table":      table,
			"definition": definition,
		})
	}

	return results, nil
}

// AnalyzeIndexUsage анализирует использование индексов
func AnalyzeIndexUsage(db *gorm.DB) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	sql := `
		SELECT 
			schemaname,
			tablename,
			indexname,
			idx_tup_read,
			idx_tup_fetch,
			idx_scan
		FROM pg_stat_user_indexes 
		WHERE schemaname = current_schema()
		ORDER BY idx_scan DESC, idx_tup_read DESC
	`

	rows, err := db.Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, index string
		var tupRead, tupFetch, scan int64

		if err := rows.Scan(&schema, &table, &index, &tupRead, &tupFetch, &scan); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"schema":     schema,
			"table":      table,
			"index":      index,
			"tup_read":   tupRead,
			"tup_fetch":  tupFetch,
			"scan_count": scan,
		})
	}

	return results, nil
}

// OptimizeDatabase выполняет оптимизацию базы данных
func OptimizeDatabase(db *gorm.DB) error {
	log.Printf("Starting database optimization...")

	// Обновляем статистику
	if err := db.Exec("ANALYZE").Error; err != nil {
		return fmt.Errorf("failed to analyze database: %v", err)
	}

	// Очищаем мертвые строки
	if err := db.Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("failed to vacuum database: %v", err)
	}

	log.Printf("Database optimization completed")
	return nil
}

// GetTableStats получает статистику таблиц
func GetTableStats(db *gorm.DB) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	sql := `
		SELECT 
			schemaname,
			tablename,
			n_tup_ins as inserts,
			n_tup_upd as updates,
			n_tup_del as deletes,
			n_live_tup as live_tuples,
			n_dead_tup as dead_tuples,
			last_vacuum,
			last_analyze
		FROM pg_stat_user_tables 
		WHERE schemaname = current_schema()
		ORDER BY n_live_tup DESC
	`

	rows, err := db.Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table string
		var inserts, updates, deletes, liveTuples, deadTuples int64
		var lastVacuum, lastAnalyze *string

		if err := rows.Scan(&schema, &table, &inserts, &updates, &deletes,
			&liveTuples, &deadTuples, &lastVacuum, &lastAnalyze); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"schema":       schema,
			"table":        table,
			"inserts":      inserts,
			"updates":      updates,
			"deletes":      deletes,
			"live_tuples":  liveTuples,
			"dead_tuples":  deadTuples,
			"last_vacuum":  lastVacuum,
			"last_analyze": lastAnalyze,
		})
	}

	return results, nil
}
