package db

// SQLite-backed storage for labeled spectrogram snippets. The chopper
// inserts one row per snippet; the fold sampler reads rows back by id
// when assembling training and validation batches.

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"call-detection/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// Snippet is one labeled window cut from a parent spectrogram. Field
// order mirrors the Samples table columns.
type Snippet struct {
	SampleID          int
	RecordingSite     string
	Label             int
	StartTimeTick     int
	EndTimeTick       int
	StartTime         float64
	EndTime           float64
	ParentLowEnergy   float64
	ParentMedEnergy   float64
	ParentHighEnergy  float64
	SnippetLowEnergy  float64
	SnippetMedEnergy  float64
	SnippetHighEnergy float64
	Filename          string
}

type SnippetStore struct {
	db *sql.DB
}

// NewSnippetStore opens the snippet database at the given path,
// creating the file, its parent folder, and the schema as needed.
func NewSnippetStore(path string) (*SnippetStore, error) {
	dir := filepath.Dir(strings.Split(path, "?")[0])
	if dir != "." && dir != "" {
		err := utils.CreateFolder(dir)
		if err != nil {
			return nil, fmt.Errorf("error creating directory for SQLite db: %s", err)
		}
	}

	db, err := sql.Open("sqlite3", busyTimeoutDSN(path))
	if err != nil {
		return nil, err
	}

	err = createSampleTable(db)
	if err != nil {
		return nil, err
	}

	return &SnippetStore{db: db}, nil
}

// busyTimeoutDSN appends a busy timeout so concurrent readers wait for
// a writer instead of failing immediately.
func busyTimeoutDSN(path string) string {
	if strings.Contains(path, "_busy_timeout") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_busy_timeout=5000"
	}
	return path + "?_busy_timeout=5000"
}

func createSampleTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS Samples (
		sample_id INTEGER PRIMARY KEY,
		recording_site TEXT,
		label INTEGER,
		start_time_tick INTEGER,
		end_time_tick INTEGER,
		start_time REAL,
		end_time REAL,
		parent_low_freqs_energy REAL,
		parent_med_freqs_energy REAL,
		parent_high_freqs_energy REAL,
		snippet_low_freqs_energy REAL,
		snippet_med_freqs_energy REAL,
		snippet_high_freqs_energy REAL,
		snippet_filename TEXT
	)`)
	if err != nil {
		return fmt.Errorf("error creating Samples table: %s", err)
	}
	return nil
}

func (s *SnippetStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertSnippet stores one snippet row under its SampleID.
func (s *SnippetStore) InsertSnippet(snip Snippet) error {
	_, err := s.db.Exec(`INSERT INTO Samples (
		sample_id, recording_site, label,
		start_time_tick, end_time_tick, start_time, end_time,
		parent_low_freqs_energy, parent_med_freqs_energy, parent_high_freqs_energy,
		snippet_low_freqs_energy, snippet_med_freqs_energy, snippet_high_freqs_energy,
		snippet_filename
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snip.SampleID, snip.RecordingSite, snip.Label,
		snip.StartTimeTick, snip.EndTimeTick, snip.StartTime, snip.EndTime,
		snip.ParentLowEnergy, snip.ParentMedEnergy, snip.ParentHighEnergy,
		snip.SnippetLowEnergy, snip.SnippetMedEnergy, snip.SnippetHighEnergy,
		snip.Filename,
	)
	if err != nil {
		return fmt.Errorf("error inserting snippet %d: %s", snip.SampleID, err)
	}
	return nil
}

// InsertSnippets stores a batch of snippets in one transaction.
func (s *SnippetStore) InsertSnippets(snips []Snippet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %s", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO Samples (
		sample_id, recording_site, label,
		start_time_tick, end_time_tick, start_time, end_time,
		parent_low_freqs_energy, parent_med_freqs_energy, parent_high_freqs_energy,
		snippet_low_freqs_energy, snippet_med_freqs_energy, snippet_high_freqs_energy,
		snippet_filename
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	for _, snip := range snips {
		_, err := stmt.Exec(
			snip.SampleID, snip.RecordingSite, snip.Label,
			snip.StartTimeTick, snip.EndTimeTick, snip.StartTime, snip.EndTime,
			snip.ParentLowEnergy, snip.ParentMedEnergy, snip.ParentHighEnergy,
			snip.SnippetLowEnergy, snip.SnippetMedEnergy, snip.SnippetHighEnergy,
			snip.Filename,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting snippet %d: %s", snip.SampleID, err)
		}
	}

	return tx.Commit()
}

const sampleColumns = `sample_id, recording_site, label,
	start_time_tick, end_time_tick, start_time, end_time,
	parent_low_freqs_energy, parent_med_freqs_energy, parent_high_freqs_energy,
	snippet_low_freqs_energy, snippet_med_freqs_energy, snippet_high_freqs_energy,
	snippet_filename`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnippet(row rowScanner) (Snippet, error) {
	var snip Snippet
	err := row.Scan(
		&snip.SampleID, &snip.RecordingSite, &snip.Label,
		&snip.StartTimeTick, &snip.EndTimeTick, &snip.StartTime, &snip.EndTime,
		&snip.ParentLowEnergy, &snip.ParentMedEnergy, &snip.ParentHighEnergy,
		&snip.SnippetLowEnergy, &snip.SnippetMedEnergy, &snip.SnippetHighEnergy,
		&snip.Filename,
	)
	return snip, err
}

// QueryAll returns every snippet ordered by sample id.
func (s *SnippetStore) QueryAll() ([]Snippet, error) {
	rows, err := s.db.Query("SELECT " + sampleColumns + " FROM Samples ORDER BY sample_id")
	if err != nil {
		return nil, fmt.Errorf("error querying snippets: %s", err)
	}
	defer rows.Close()

	var snips []Snippet
	for rows.Next() {
		snip, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning snippet: %s", err)
		}
		snips = append(snips, snip)
	}
	return snips, rows.Err()
}

// QueryByID fetches one snippet. The second return value reports
// whether the id exists.
func (s *SnippetStore) QueryByID(sampleID int) (Snippet, bool, error) {
	row := s.db.QueryRow("SELECT "+sampleColumns+" FROM Samples WHERE sample_id = ?", sampleID)
	snip, err := scanSnippet(row)
	if err == sql.ErrNoRows {
		return Snippet{}, false, nil
	}
	if err != nil {
		return Snippet{}, false, fmt.Errorf("error querying snippet %d: %s", sampleID, err)
	}
	return snip, true, nil
}

// SampleIDs returns the stored sample ids in ascending order.
func (s *SnippetStore) SampleIDs() ([]int, error) {
	rows, err := s.db.Query("SELECT sample_id FROM Samples ORDER BY sample_id")
	if err != nil {
		return nil, fmt.Errorf("error querying sample ids: %s", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning sample id: %s", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LabelsForIDs maps each requested sample id to its stored label.
// Ids absent from the store are left out of the result.
func (s *SnippetStore) LabelsForIDs(sampleIDs []int) (map[int]int, error) {
	stmt, err := s.db.Prepare("SELECT label FROM Samples WHERE sample_id = ?")
	if err != nil {
		return nil, fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	labels := make(map[int]int, len(sampleIDs))
	for _, id := range sampleIDs {
		var label int
		err := stmt.QueryRow(id).Scan(&label)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error querying label for sample %d: %s", id, err)
		}
		labels[id] = label
	}
	return labels, nil
}

// MaxSampleID returns the largest stored sample id, or 0 when the
// store is empty.
func (s *SnippetStore) MaxSampleID() (int, error) {
	var maxID int
	err := s.db.QueryRow("SELECT COALESCE(MAX(sample_id), 0) FROM Samples").Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("error querying max sample id: %s", err)
	}
	return maxID, nil
}

func (s *SnippetStore) CountSamples() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM Samples").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting samples: %s", err)
	}
	return count, nil
}

func (s *SnippetStore) CountByLabel(label int) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM Samples WHERE label = ?", label).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting samples with label %d: %s", label, err)
	}
	return count, nil
}

// SiteCounts reports how many snippets each recording site contributed.
func (s *SnippetStore) SiteCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT recording_site, COUNT(*) FROM Samples GROUP BY recording_site")
	if err != nil {
		return nil, fmt.Errorf("error counting samples per site: %s", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var site string
		var count int
		if err := rows.Scan(&site, &count); err != nil {
			return nil, fmt.Errorf("error scanning site count: %s", err)
		}
		counts[site] = count
	}
	return counts, rows.Err()
}

// DeleteAll removes every snippet row but keeps the schema.
func (s *SnippetStore) DeleteAll() error {
	_, err := s.db.Exec("DELETE FROM Samples")
	if err != nil {
		return fmt.Errorf("error deleting samples: %s", err)
	}
	return nil
}
