package store

import "context"

// Container groups the stores backed by one database.
type Container struct {
	Store *Store

	Contacts  *ContactStore
	Baselines *BaselineStore
}

// NewContainer creates a new Container with all sub-stores initialized.
func NewContainer(s *Store) *Container {
	return &Container{
		Store:     s,
		Contacts:  NewContactStore(s),
		Baselines: NewBaselineStore(s),
	}
}

// Close closes the underlying store.
func (c *Container) Close() error {
	return c.Store.Close()
}

// Stats returns statistics about stored entities.
type Stats struct {
	Contacts        int `json:"contacts"`
	Baselines       int `json:"baselines"`
	AvatarChanges   int `json:"avatar_changes"`
	StatusChanges   int `json:"status_changes"`
	PresenceSamples int `json:"presence_samples"`
}

// GetStats returns current entity counts.
func (c *Container) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"pw_contacts", &stats.Contacts},
		{"pw_baselines", &stats.Baselines},
		{"pw_avatar_history", &stats.AvatarChanges},
		{"pw_status_history", &stats.StatusChanges},
		{"pw_presence_log", &stats.PresenceSamples},
	}
	for _, q := range counts {
		if err := c.Store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
