package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCoverLetterGenerate = "cover_letter:generate"
)

// CoverLetterGeneratePayload 描述后台生成求职信所需的最小信息。
type CoverLetterGeneratePayload struct {
	UserID        uint   `json:"user_id"`
	JobID         uint   `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCoverLetterGenerateTask 构造一个新的求职信生成任务。
func NewCoverLetterGenerateTask(userID, jobID uint, correlationID string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(CoverLetterGeneratePayload{
		UserID:        userID,
		JobID:         jobID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCoverLetterGenerate, payload,
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(15*time.Minute),
	), nil
}
