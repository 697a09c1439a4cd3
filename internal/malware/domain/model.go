package domain

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Malware is a named malware entry. Slug is the natural key derived from Name.
type Malware struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	Name        string            `gorm:"size:255;not null"`
	Slug        string            `gorm:"size:255;not null"`
	Family      *string           `gorm:"size:255"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata"`
	CreatedDate int64             `gorm:"not null"`
	UpdatedDate int64             `gorm:"not null"`
}

func (Malware) TableName() string { return "malware" }

// MalwareIndicator links a malware entry to an indicator.
type MalwareIndicator struct {
	MalwareID   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	IndicatorID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	CreatedDate int64        `gorm:"not null"`
}

func (MalwareIndicator) TableName() string { return "malware_indicators" }
