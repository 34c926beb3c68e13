package db

import "time"

type BaseTable struct {
	Id          int
	UpdatedTime time.Time `gorm:"autoUpdateTime"`
	CreatedTime time.Time `gorm:"autoCreateTime"`
}

// StateRecord is one row of the relay state table. SortKey is reserved and always empty.
type StateRecord struct {
	PartitionKey string `gorm:"size:191;not null;uniqueIndex:idx_relay_state_key"`
	SortKey      string `gorm:"size:191;not null;uniqueIndex:idx_relay_state_key"`
	Value        string `gorm:"type:text"`

	BaseTable
}

func (StateRecord) TableName() string {
	return "relay_state"
}
