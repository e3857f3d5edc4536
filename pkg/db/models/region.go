package models

import "github.com/google/uuid"

// Region is a top-level shipping area (e.g. Kanto).
type Region struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name string    `gorm:"column:name;not null" json:"name"`
}

// Prefecture belongs to exactly one Region.
type Prefecture struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RegionID uuid.UUID `gorm:"column:region_id;type:uuid;not null" json:"region_id"`
	Name     string    `gorm:"column:name;not null" json:"name"`
}
