package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypePortfolioExport = "portfolio:export_pdf"
)

// PortfolioExportPayload 描述导出作品集 PDF 所需的最小信息。
type PortfolioExportPayload struct {
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewPortfolioExportTask 构造一个作品集 PDF 导出任务。
func NewPortfolioExportTask(userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PortfolioExportPayload{
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePortfolioExport, payload), nil
}

// ParsePortfolioExportPayload 解析任务负载。
func ParsePortfolioExportPayload(task *asynq.Task) (PortfolioExportPayload, error) {
	var payload PortfolioExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("unmarshal %s payload: %w", task.Type(), err)
	}
	if payload.UserID == 0 {
		return payload, fmt.Errorf("%s payload missing user_id", task.Type())
	}
	return payload, nil
}
