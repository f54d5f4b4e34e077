package repostore

import "time"

// Repository is one repository the user has opened in the app, plus its
// per-repository preferences.
type Repository struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	Path            string     `gorm:"uniqueIndex;not null" json:"path"`
	Name            string     `gorm:"not null" json:"name"`
	DefaultRemote   string     `gorm:"default:origin" json:"defaultRemote"`
	PullRebase      bool       `gorm:"default:false" json:"pullRebase"`
	TrustedGlobally bool       `gorm:"default:false" json:"trustedGlobally"`
	LastOpenedAt    *time.Time `json:"lastOpenedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
