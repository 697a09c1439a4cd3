package domain

import "github.com/bwmarrin/snowflake"

// Indicator is one stored indicator of compromise. Value is the identity key
// for writes, ValueLower the lookup key for reads.
type Indicator struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Value          string       `gorm:"size:768;not null" json:"value"`
	ValueLower     string       `gorm:"column:value_lower;size:768;not null" json:"value_lower"`
	Type           string       `gorm:"size:64;not null" json:"type"`
	CreatedDate    int64        `gorm:"not null" json:"created_date"`
	UpdatedDate    int64        `gorm:"not null" json:"updated_date"`
	ExpirationDate *int64       `json:"expiration_date,omitempty"`
}

func (Indicator) TableName() string { return "indicators" }

// IndicatorInput is a raw indicator as submitted by a feed or caller.
// Timestamps are epoch seconds.
type IndicatorInput struct {
	Type           string `json:"type"`
	Value          string `json:"value"`
	CreatedDate    int64  `json:"createdDate"`
	UpdatedDate    int64  `json:"updatedDate"`
	ExpirationDate *int64 `json:"expirationDate,omitempty"`
}

// Update carries the mutable fields refreshed on re-ingestion.
type Update struct {
	Value          string
	ValueLower     string
	UpdatedDate    int64
	ExpirationDate *int64
}
