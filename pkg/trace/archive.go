package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketEntries = []byte("trace_entries")
	bucketEvents  = []byte("controller_events")
	bucketRuns    = []byte("runs")
)

// RunRecord summarises one archived simulation run
type RunRecord struct {
	ID       string  `json:"id"`
	Platform string  `json:"platform"`
	Workload string  `json:"workload"`
	EndTime  float64 `json:"end_time"`
}

// EventRecord is one controller event archived from a run
type EventRecord struct {
	TS      float64 `json:"ts"`
	Kind    string  `json:"kind"`
	Job     string  `json:"job,omitempty"`
	Service string  `json:"service,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Archive persists simulation output to a BoltDB file so traces and event
// logs survive the process and can be inspected after simulation end
type Archive struct {
	db *bolt.DB
}

// OpenArchive opens (or creates) the archive database in dataDir
func OpenArchive(dataDir string) (*Archive, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketEvents, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun records a run summary
func (a *Archive) SaveRun(run *RunRecord) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(run.ID), data)
	})
}

// GetRun fetches a run summary
func (a *Archive) GetRun(id string) (*RunRecord, error) {
	var run RunRecord
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveEntries appends a run's trace entries, keyed by run and sequence so
// iteration preserves order
func (a *Archive) SaveEntries(runID string, log *Log) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for i, e := range log.Entries() {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(runID, uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEntries returns a run's trace entries in recorded order
func (a *Archive) LoadEntries(runID string) ([]Entry, error) {
	var entries []Entry
	err := a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		prefix := []byte(runID + "/")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// SaveEvents appends a run's controller events
func (a *Archive) SaveEvents(runID string, events []EventRecord) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		for i, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(runID, uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEvents returns a run's controller events in recorded order
func (a *Archive) LoadEvents(runID string) ([]EventRecord, error) {
	var events []EventRecord
	err := a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		prefix := []byte(runID + "/")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var e EventRecord
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

func entryKey(runID string, seq uint64) []byte {
	key := make([]byte, 0, len(runID)+9)
	key = append(key, runID...)
	key = append(key, '/')
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(key, b[:]...)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
