package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is the task queue ingestion workflows run on.
const DefaultTaskQueue = "medrag-ingest"

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string, acts *Activities) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestPrescriptionWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// WorkflowStarter is the subset of client.Client a Dispatcher uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dispatcher schedules ingestion workflows.
type Dispatcher struct {
	client    WorkflowStarter
	taskQueue string
	newID     func() string
}

// NewDispatcher creates a Dispatcher on taskQueue (DefaultTaskQueue when
// empty).
func NewDispatcher(c WorkflowStarter, taskQueue string) *Dispatcher {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Dispatcher{client: c, taskQueue: taskQueue, newID: uuid.NewString}
}

// DispatchIngest starts an ingestion workflow and returns its workflow id.
func (d *Dispatcher) DispatchIngest(ctx context.Context, patientID, rawText string) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "ingest-" + patientID + "-" + d.newID(),
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, IngestPrescriptionWorkflow, IngestInput{PatientID: patientID, RawText: rawText})
	if err != nil {
		return "", fmt.Errorf("start ingest workflow: %w", err)
	}
	return run.GetID(), nil
}
