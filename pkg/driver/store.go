package driver

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/xww/neutron-monitor-agent/pkg/types"
)

var bucketMonitors = []byte("monitors")

// recordStore persists the enforced monitor set in a bbolt database so the
// driver's view survives agent restarts.
type recordStore struct {
	db *bolt.DB
}

func openRecordStore(dataDir string) (*recordStore, error) {
	dbPath := filepath.Join(dataDir, "monitors.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMonitors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &recordStore{db: db}, nil
}

func (s *recordStore) Close() error {
	return s.db.Close()
}

// put upserts a monitor record
func (s *recordStore) put(monitor *types.Monitor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMonitors)
		data, err := json.Marshal(monitor)
		if err != nil {
			return err
		}
		return b.Put([]byte(monitor.ID), data)
	})
}

// get returns the record for id, or nil when absent
func (s *recordStore) get(id string) (*types.Monitor, error) {
	var monitor *types.Monitor
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMonitors)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		monitor = new(types.Monitor)
		return json.Unmarshal(data, monitor)
	})
	return monitor, err
}

// list returns all records from one consistent view transaction
func (s *recordStore) list() (map[string]*types.Monitor, error) {
	monitors := make(map[string]*types.Monitor)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMonitors)
		return b.ForEach(func(k, v []byte) error {
			var monitor types.Monitor
			if err := json.Unmarshal(v, &monitor); err != nil {
				return err
			}
			monitors[monitor.ID] = &monitor
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return monitors, nil
}

// delete removes a record; deleting an absent id is a no-op
func (s *recordStore) delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMonitors)
		return b.Delete([]byte(id))
	})
}
