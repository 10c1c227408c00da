package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRefreshSweep deletes expired refresh tokens.
	TaskRefreshSweep = "authz:refresh_sweep"
	// TaskCatalogCheck validates every permission code and the catalog tree.
	TaskCatalogCheck = "authz:catalog_check"
	// TaskPolicyWarmup labels the in-process policy warmup. It is never queued:
	// policies live in the API process that serves requests.
	TaskPolicyWarmup = "authz:policy_warmup"
)

// TriggerPayload records who asked for a maintenance run.
type TriggerPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewRefreshSweepTask constructs the refresh sweep task.
func NewRefreshSweepTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(TriggerPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefreshSweep, data, asynq.MaxRetry(3)), nil
}

// NewCatalogCheckTask constructs the catalog check task. A broken catalog
// does not fix itself, so it is not retried.
func NewCatalogCheckTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(TriggerPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogCheck, data, asynq.MaxRetry(0)), nil
}

func decodeTrigger(t *asynq.Task) (TriggerPayload, error) {
	var payload TriggerPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
