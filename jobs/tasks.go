package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskSyncMaterials = "sync:materials"
	TaskSyncLabour    = "sync:labour"
	TaskSyncDrift     = "sync:drift"
	TaskSyncCatalog   = "sync:catalog"
	// TaskClaimsCleanup prunes expired posting claims.
	TaskClaimsCleanup = "sync:claims-cleanup"
	// TaskNotify delivers one failure notice.
	TaskNotify = "notify:send"
)

// SyncTasks maps pipeline names onto their poll task types.
var SyncTasks = map[string]string{
	"materials": TaskSyncMaterials,
	"labour":    TaskSyncLabour,
	"drift":     TaskSyncDrift,
	"catalog":   TaskSyncCatalog,
}

// NotificationPayload is the body of a notify:send task.
type NotificationPayload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// NewSyncTask builds the poll task of a pipeline. Poll tasks carry no
// payload.
func NewSyncTask(pipeline string) (*asynq.Task, error) {
	typ, ok := SyncTasks[pipeline]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown pipeline %q", pipeline)
	}
	return asynq.NewTask(typ, nil), nil
}

// NewNotificationTask constructs a notify:send task.
func NewNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotify, data), nil
}
