package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	FullName  string         `gorm:"size:255" json:"full_name,omitempty"`
	IsAdmin   bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Optional profile used to prefill interview setup
	TargetRole    string `gorm:"size:100" json:"target_role,omitempty"`
	TargetLevel   string `gorm:"size:50" json:"target_level,omitempty"`
	ResumeBlobKey string `gorm:"size:255" json:"resume_blob_key,omitempty"`

	// Relationships
	Interviews []Interview `gorm:"foreignKey:UserID" json:"interviews,omitempty"`
}
