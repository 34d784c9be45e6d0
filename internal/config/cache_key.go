package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key that marks a login session (JWT ID) as live.
func (r *CacheKeyStruct) UserSessionKey(userID int, jti string) string {
	return fmt.Sprintf("login:%d:%s", userID, jti)
}

// ExamPaperKey returns the cache key for the candidate-facing questions of an exam.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// QuestionCategoriesKey returns the cache key for the list of question categories.
func (r *CacheKeyStruct) QuestionCategoriesKey() string {
	return "questions:categories"
}

var CacheKey = NewCacheKeyStruct()
