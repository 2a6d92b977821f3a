package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS companies_directory (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	company_name  TEXT NOT NULL,
	country_name  TEXT,
	fleet_size    TEXT,
	company_title TEXT,
	company_url   TEXT NOT NULL UNIQUE,
	processed     INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_directory_processed ON companies_directory(processed);

CREATE TABLE IF NOT EXISTS company_details (
	company_id      INTEGER PRIMARY KEY,
	company_name    TEXT,
	company_address TEXT,
	country         TEXT,
	total_vessels   TEXT,
	total_dwt       TEXT,
	company_website TEXT,
	updated_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fleet_vessels (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id         INTEGER NOT NULL,
	vessel_imo         TEXT,
	vessel_mmsi        TEXT,
	vessel_name        TEXT,
	vessel_type        TEXT,
	dwt                TEXT,
	flag               TEXT,
	registered_owner   TEXT,
	commercial_manager TEXT,
	ism_manager        TEXT,
	raw                TEXT NOT NULL,
	created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fleet_company ON fleet_vessels(company_id);
`

// Store is the SQLite persistence layer shared by the directory crawler, the
// batch scheduler and the result sink.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DirectoryEntry is one company discovered by the listing crawler.
type DirectoryEntry struct {
	ID        int64
	Name      string
	Country   string
	FleetSize string
	Title     string
	URL       string
}

// InsertDirectoryEntries upserts crawled companies, ignoring URLs already
// present, and returns the number of new rows.
func (s *Store) InsertDirectoryEntries(entries []DirectoryEntry) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO companies_directory
		(company_name, country_name, fleet_size, company_title, company_url)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		res, err := stmt.Exec(e.Name, e.Country, e.FleetSize, e.Title, e.URL)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

// NextPendingCompany returns the oldest unprocessed company, or nil when the
// queue is drained.
func (s *Store) NextPendingCompany() (*DirectoryEntry, error) {
	entries, err := s.PendingCompanies(1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// PendingCompanies returns up to limit unprocessed companies in id order.
func (s *Store) PendingCompanies(limit int) ([]DirectoryEntry, error) {
	rows, err := s.db.Query(`SELECT id, company_name, country_name, fleet_size, company_title, company_url
		FROM companies_directory WHERE processed = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DirectoryEntry
	for rows.Next() {
		var e DirectoryEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Country, &e.FleetSize, &e.Title, &e.URL); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) MarkProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE companies_directory SET processed = 1 WHERE id = ?`, id)
	return err
}

// SaveCompanyDetails writes the scraped company header, replacing any
// previous snapshot for the same company.
func (s *Store) SaveCompanyDetails(companyID int64, info *CompanyInfo) error {
	_, err := s.db.Exec(`INSERT INTO company_details
		(company_id, company_name, company_address, country, total_vessels, total_dwt, company_website)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			company_name = excluded.company_name,
			company_address = excluded.company_address,
			country = excluded.country,
			total_vessels = excluded.total_vessels,
			total_dwt = excluded.total_dwt,
			company_website = excluded.company_website,
			updated_at = CURRENT_TIMESTAMP`,
		companyID, info.Name, info.Address, info.Country, info.TotalVessels, info.TotalDWT, info.Website)
	return err
}

// SaveFleet replaces the stored fleet rows for a company with the freshly
// fetched page. Each row keeps its full raw JSON next to the indexed columns.
func (s *Store) SaveFleet(companyID int64, vessels []FleetVessel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fleet_vessels WHERE company_id = ?`, companyID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO fleet_vessels
		(company_id, vessel_imo, vessel_mmsi, vessel_name, vessel_type, dwt, flag,
		 registered_owner, commercial_manager, ism_manager, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range vessels {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = stmt.Exec(companyID,
			v.stringField("vessel_imo"),
			v.stringField("vessel_mmsi"),
			stripTags(v.stringField("vessel_name")),
			v.stringField("vessel_type"),
			v.stringField("dwt"),
			v.stringField("flag"),
			v.stringField("registered_owner"),
			v.stringField("commercial_manager"),
			v.stringField("ism_manager"),
			string(raw))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// stringField renders a schemaless row field as text. Numbers come back from
// JSON as float64; integral values are printed without the decimal tail.
func (v FleetVessel) stringField(key string) string {
	val, ok := v[key]
	if !ok || val == nil {
		return ""
	}
	switch t := val.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// stripTags flattens the markup the endpoint embeds in vessel name cells
// (an anchor wrapping the name) down to the visible text.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
