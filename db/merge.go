package db

// Merging of snippet databases produced by separate chopping runs.
//
// Chopping jobs run in parallel over different recordings, each
// writing its own SQLite file. MergeStores folds those files into one
// database so a single fold sampler can draw from all of them:
// 1. Tables are discovered from each source (or taken from an explicit
//    list) and created in the destination when missing, using the
//    source's own CREATE statement.
// 2. Rows are copied inside one transaction per table.
// 3. For tables with a single INTEGER PRIMARY KEY, a source key that
//    already exists in the destination is replaced with a fresh key
//    one past the current maximum. Free keys are kept as-is.

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"call-detection/utils"
)

// MergeStores copies the given tables from each source database into
// the destination, creating the destination and any missing tables.
// A nil or empty tables list merges every table found in the sources.
// Sources missing one of the named tables are skipped for that table.
func MergeStores(dstPath string, srcPaths []string, tables []string) error {
	dir := filepath.Dir(strings.Split(dstPath, "?")[0])
	if dir != "." && dir != "" {
		err := utils.CreateFolder(dir)
		if err != nil {
			return fmt.Errorf("error creating directory for SQLite db: %s", err)
		}
	}

	dst, err := sql.Open("sqlite3", busyTimeoutDSN(dstPath))
	if err != nil {
		return fmt.Errorf("error opening destination db: %s", err)
	}
	defer dst.Close()

	for _, srcPath := range srcPaths {
		err := mergeSource(dst, srcPath, tables)
		if err != nil {
			return fmt.Errorf("error merging %s: %s", srcPath, err)
		}
	}
	return nil
}

func mergeSource(dst *sql.DB, srcPath string, tables []string) error {
	src, err := sql.Open("sqlite3", busyTimeoutDSN(srcPath))
	if err != nil {
		return fmt.Errorf("error opening source db: %s", err)
	}
	defer src.Close()

	if len(tables) == 0 {
		tables, err = discoverTables(src)
		if err != nil {
			return err
		}
	}

	for _, table := range tables {
		err := mergeTable(dst, src, table)
		if err != nil {
			return fmt.Errorf("error merging table %s: %s", table, err)
		}
	}
	return nil
}

// discoverTables lists the user tables of a database, leaving out
// SQLite's internal bookkeeping tables.
func discoverTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("error listing tables: %s", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning table name: %s", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func tableCreateSQL(db *sql.DB, table string) (string, bool, error) {
	var createSQL string
	err := db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&createSQL)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading schema for %s: %s", table, err)
	}
	return createSQL, true, nil
}

// integerPrimaryKeyColumn returns the name of the table's single
// INTEGER PRIMARY KEY column, if it has one. Tables without one, or
// with a composite key, are copied without key rewriting.
func integerPrimaryKeyColumn(db *sql.DB, table string) (string, bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return "", false, fmt.Errorf("error reading columns of %s: %s", table, err)
	}
	defer rows.Close()

	var keyCol string
	keyCount := 0
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return "", false, fmt.Errorf("error scanning column info: %s", err)
		}
		if pk > 0 {
			keyCount++
			if strings.EqualFold(ctype, "INTEGER") {
				keyCol = name
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	if keyCount == 1 && keyCol != "" {
		return keyCol, true, nil
	}
	return "", false, nil
}

// existingKeys loads the destination's current key set and maximum so
// colliding source keys can be reassigned past the maximum.
func existingKeys(db *sql.DB, table, keyCol string) (map[int64]bool, int64, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s", keyCol, table))
	if err != nil {
		return nil, 0, fmt.Errorf("error reading keys of %s: %s", table, err)
	}
	defer rows.Close()

	used := map[int64]bool{}
	var maxKey int64
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, 0, fmt.Errorf("error scanning key: %s", err)
		}
		used[key] = true
		if key > maxKey {
			maxKey = key
		}
	}
	return used, maxKey, rows.Err()
}

func mergeTable(dst, src *sql.DB, table string) error {
	createSQL, ok, err := tableCreateSQL(src, table)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, dstHas, err := tableCreateSQL(dst, table)
	if err != nil {
		return err
	}
	if !dstHas {
		_, err := dst.Exec(createSQL)
		if err != nil {
			return fmt.Errorf("error creating table %s: %s", table, err)
		}
	}

	keyCol, hasKey, err := integerPrimaryKeyColumn(src, table)
	if err != nil {
		return err
	}
	var used map[int64]bool
	var maxKey int64
	if hasKey {
		used, maxKey, err = existingKeys(dst, table, keyCol)
		if err != nil {
			return err
		}
	}

	rows, err := src.Query(fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return fmt.Errorf("error reading rows of %s: %s", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error reading columns of %s: %s", table, err)
	}
	keyIdx := -1
	for i, col := range cols {
		if hasKey && col == keyCol {
			keyIdx = i
		}
	}

	tx, err := dst.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %s", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			tx.Rollback()
			return fmt.Errorf("error scanning row: %s", err)
		}
		for i, v := range values {
			// The driver hands TEXT back as []byte. Convert so the
			// copy is stored as TEXT again rather than a blob.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		if keyIdx >= 0 {
			if key, ok := values[keyIdx].(int64); ok {
				if used[key] {
					maxKey++
					key = maxKey
					values[keyIdx] = key
				}
				used[key] = true
				if key > maxKey {
					maxKey = key
				}
			}
		}

		if _, err := stmt.Exec(values...); err != nil {
			tx.Rollback()
			return fmt.Errorf("error copying row into %s: %s", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
