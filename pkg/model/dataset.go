package model

import "time"

// Dataset is a named collection of documents uploaded as one file
type Dataset struct {
	ID           uint      `gorm:"column:id;primaryKey" json:"id"`
	Name         string    `gorm:"column:name;size:150;not null" json:"name"`
	OriginalFile string    `gorm:"column:original_file" json:"original_file"`
	Description  string    `gorm:"column:description" json:"description"`
	CreateTime   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Dataset) TableName() string {
	return "datasets"
}

// Document is a single text to annotate
type Document struct {
	ID           uint      `gorm:"column:id;primaryKey" json:"id"`
	Name         string    `gorm:"column:name;size:150;not null" json:"name"`
	Text         string    `gorm:"column:text" json:"text"`
	DatasetID    uint      `gorm:"column:dataset_id;not null;index" json:"dataset"`
	Dataset      *Dataset  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreateTime   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	LastModified time.Time `gorm:"column:last_modified;autoUpdateTime" json:"last_modified"`
}

func (Document) TableName() string {
	return "documents"
}
