package library

import "time"

// MediaItem is a media item known to the library.
type MediaItem struct {
	ID        string   `gorm:"primaryKey;size:36"`
	Title     string   `gorm:"size:512"`
	Aspects   []Aspect `gorm:"foreignKey:MediaItemID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Aspect is one attribute record of a media item. Attributes holds the
// record as a JSON object.
type Aspect struct {
	ID           uint   `gorm:"primaryKey"`
	MediaItemID  string `gorm:"size:36;not null;index"`
	AspectTypeID string `gorm:"size:36;not null"`
	Attributes   string `gorm:"type:text;not null"`
}

// Analysis is the stored result of analyzing a media item.
type Analysis struct {
	MediaItemID    string `gorm:"primaryKey;size:36"`
	AspectCount    int
	AttributeCount int
	Payload        string `gorm:"type:text"`
	AnalyzedAt     time.Time
}
