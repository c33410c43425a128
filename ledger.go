package bsda

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // Following canonical example on go-sqlite3 'simple.go'
)

const LedgerName = ".bsda.stats.db"

// LedgerEntry is one completed download.
type LedgerEntry struct {
	FileId           string
	SampleId         string
	ProjectId        string
	Name             string
	LocalPath        string
	Size             int64
	Checksum         string
	DownloadDoneTime int64 // nanoseconds since the epoch
}

// LedgerSummary is what the progress command reports.
type LedgerSummary struct {
	NumFiles  int
	NumBytes  int64
	LastDone  time.Time
	NumSample int
}

// Ledger records completed downloads in a sqlite database kept in the
// output directory. It is write-only from the point of view of a run:
// nothing is skipped or resumed because of it.
type Ledger struct {
	mutex *sync.Mutex
	db    *sql.DB
}

func LedgerPath(outputDir string) string {
	return filepath.Join(outputDir, LedgerName)
}

// OpenLedger opens (creating if needed) the ledger of an output directory.
func OpenLedger(outputDir string) (*Ledger, error) {
	statsFname := LedgerPath(outputDir) + "?_busy_timeout=60000&cache=shared&mode=rwc"
	db, err := sql.Open("sqlite3", statsFname)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	sqlStmt := `
	CREATE TABLE IF NOT EXISTS downloads (
		file_id text,
		sample_id text,
		project_id text,
		name text,
		local_path text,
		size integer,
		checksum text,
		download_done_time integer
	);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create ledger in %s: %w", outputDir, err)
	}
	return &Ledger{mutex: &sync.Mutex{}, db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Record(e LedgerEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if e.DownloadDoneTime == 0 {
		e.DownloadDoneTime = time.Now().UnixNano()
	}
	_, err := l.db.Exec(
		"INSERT INTO downloads VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.FileId, e.SampleId, e.ProjectId, e.Name, e.LocalPath, e.Size, e.Checksum, e.DownloadDoneTime)
	return err
}

// Entries returns the latest record of every file, oldest first.
func (l *Ledger) Entries() ([]LedgerEntry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	rows, err := l.db.Query(`
		SELECT file_id, sample_id, project_id, name, local_path, size, checksum, MAX(download_done_time)
		FROM downloads GROUP BY file_id, local_path ORDER BY MAX(download_done_time)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.FileId, &e.SampleId, &e.ProjectId, &e.Name, &e.LocalPath,
			&e.Size, &e.Checksum, &e.DownloadDoneTime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Ledger) Summary() (LedgerSummary, error) {
	var s LedgerSummary
	entries, err := l.Entries()
	if err != nil {
		return s, err
	}
	samples := make(map[string]struct{})
	var last int64
	for _, e := range entries {
		s.NumFiles++
		s.NumBytes += e.Size
		samples[e.SampleId] = struct{}{}
		if e.DownloadDoneTime > last {
			last = e.DownloadDoneTime
		}
	}
	s.NumSample = len(samples)
	if last > 0 {
		s.LastDone = time.Unix(0, last)
	}
	return s, nil
}

func (s LedgerSummary) String() string {
	if s.NumFiles == 0 {
		return "No downloads recorded"
	}
	return fmt.Sprintf("Downloaded %d files (%s) from %d samples, last completed %s",
		s.NumFiles, diskSpaceString(s.NumBytes), s.NumSample, s.LastDone.Format(time.RFC3339))
}

// InspectResult lists ledger files that are gone or changed on disk.
type InspectResult struct {
	Checked  int
	Missing  []LedgerEntry
	Mismatch []LedgerEntry
}

func (r InspectResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatch) == 0
}

// Inspect recomputes the checksum of every recorded file.
func (l *Ledger) Inspect() (InspectResult, error) {
	var r InspectResult
	entries, err := l.Entries()
	if err != nil {
		return r, err
	}
	for _, e := range entries {
		r.Checked++
		sum, err := ChecksumFile(ChecksumCRC64NVME, e.LocalPath)
		if err != nil {
			r.Missing = append(r.Missing, e)
			continue
		}
		if sum != e.Checksum {
			r.Mismatch = append(r.Mismatch, e)
		}
	}
	return r, nil
}
