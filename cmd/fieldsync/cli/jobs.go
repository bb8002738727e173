package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fieldsync/jobs"
)

// SyncEnqueuer submits pipeline runs.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, pipeline string) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for the sync queue.
type JobsCLI struct {
	client    SyncEnqueuer
	inspector QueueInspector
}

// NewJobsCLI builds the helpers from an enqueuer and an inspector.
func NewJobsCLI(client SyncEnqueuer, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Trigger enqueues a poll run of the named pipeline.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if _, ok := jobs.SyncTasks[name]; !ok {
		return nil, fmt.Errorf("jobs cli: unsupported pipeline %s (want one of %s)", name, strings.Join(pipelines(), ", "))
	}
	return c.client.EnqueueSync(ctx, name)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}

// Options are the command inputs.
type Options struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

// Command runs `enqueue <pipeline>` or `queue` and returns the exit code.
func (c *JobsCLI) Command(ctx context.Context, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Args) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "usage: fieldsync enqueue <pipeline> | fieldsync queue")
		return 2
	}
	switch opts.Args[0] {
	case "enqueue":
		if len(opts.Args) != 2 {
			_, _ = fmt.Fprintf(opts.Stderr, "usage: fieldsync enqueue <%s>\n", strings.Join(pipelines(), "|"))
			return 2
		}
		info, err := c.Trigger(ctx, opts.Args[1])
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "enqueue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return 0
	case "queue":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "%s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "unknown command %q\n", opts.Args[0])
		return 2
	}
}

func pipelines() []string {
	names := make([]string, 0, len(jobs.SyncTasks))
	for name := range jobs.SyncTasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
