package indexstore

import "time"

// Report represents a single indexed analysis report in the database.
type Report struct {
	ID              uint   `gorm:"primaryKey"`
	DiscoveryPath   string `gorm:"not null;uniqueIndex:idx_reports_dp_config"`
	ConfigurationID string `gorm:"not null;uniqueIndex:idx_reports_dp_config"`

	// Denormalized report fields for listing without reading files.
	BuildDisplayName string
	ProjectPath      string `gorm:"index"`
	TestCount        int
	MergedSamples    int
	BuildTimeMS      int64
	TestTimeMS       int64
	ThresholdMS      int64
	SlowTests        int
	FastTests        int
	NoData           bool

	GeneratedAt time.Time
	IndexedAt   time.Time
}
