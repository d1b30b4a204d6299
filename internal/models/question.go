package models

import "time"

// Question is an interest prompt used to rank friend suggestions.
type Question struct {
	ID      string   `gorm:"primaryKey;type:varchar(64)" json:"id" yaml:"id"`
	Text    string   `gorm:"type:varchar(255);not null" json:"text" yaml:"text"`
	Options []Option `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options" yaml:"options"`
}

// TableName specifies the table name for GORM
func (Question) TableName() string {
	return "questions"
}

// Option is one selectable answer to a Question.
type Option struct {
	ID         string `gorm:"primaryKey;type:varchar(64)" json:"id" yaml:"id"`
	QuestionID string `gorm:"type:varchar(64);not null;index" json:"question_id" yaml:"-"`
	Value      string `gorm:"type:varchar(255);not null" json:"value" yaml:"value"`
}

// TableName specifies the table name for GORM
func (Option) TableName() string {
	return "question_options"
}

// UserAnswer is the ANSWERED edge. A user holds one answer per question.
type UserAnswer struct {
	UserID     string    `gorm:"primaryKey;type:varchar(36)"`
	QuestionID string    `gorm:"primaryKey;type:varchar(64)"`
	OptionID   string    `gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (UserAnswer) TableName() string {
	return "user_answers"
}
