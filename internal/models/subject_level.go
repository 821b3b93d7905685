package models

import "time"

// SubjectLevelConfig gives a subject its coefficient at a level.
type SubjectLevelConfig struct {
	ID          string    `db:"id" json:"id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	LevelID     string    `db:"level_id" json:"level_id"`
	Coefficient int       `db:"coefficient" json:"coefficient"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectLevelDetail joins the subject and level names.
type SubjectLevelDetail struct {
	SubjectLevelConfig
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	LevelName   string `db:"level_name" json:"level_name"`
}

type SubjectLevelFilter struct {
	LevelID   string
	SubjectID string
}
