package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStartKey returns the cache key for a participant's attempt start time.
func (r *CacheKeyStruct) AttemptStartKey(examID string, participantID int) string {
	return fmt.Sprintf("participant:%d:exam:%s:started_at", participantID, examID)
}

// AnswerMirrorKey returns the cache key for a participant's answer mirror hash.
func (r *CacheKeyStruct) AnswerMirrorKey(examID string, participantID int) string {
	return fmt.Sprintf("participant:%d:exam:%s:answers", participantID, examID)
}

// ExamPaperKey returns the cache key for an exam's participant-facing paper.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

var CacheKey = NewCacheKeyStruct()
