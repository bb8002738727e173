package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/jobs"
)

type stubQueue struct {
	enqueued []string
	info     *asynq.QueueInfo
	err      error
}

func (s *stubQueue) EnqueueSync(ctx context.Context, pipeline string) (*asynq.TaskInfo, error) {
	s.enqueued = append(s.enqueued, pipeline)
	return &asynq.TaskInfo{ID: "t1", Type: jobs.SyncTasks[pipeline]}, nil
}

func (s *stubQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestEnqueueCommand(t *testing.T) {
	q := &stubQueue{}
	cli := NewJobsCLI(q, q)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := cli.Command(context.Background(), Options{Args: []string{"enqueue", "drift"}, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, []string{"drift"}, q.enqueued)
	require.Contains(t, stdout.String(), "enqueued sync:drift as t1")

	code = cli.Command(context.Background(), Options{Args: []string{"enqueue", "payroll"}, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "catalog, drift, labour, materials")
	require.Len(t, q.enqueued, 1)
}

func TestQueueCommand(t *testing.T) {
	q := &stubQueue{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}
	stdout := new(bytes.Buffer)
	code := NewJobsCLI(q, q).Command(context.Background(), Options{Args: []string{"queue"}, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Equal(t, "default pending=2 active=0 scheduled=0 retry=1 failed=0\n", stdout.String())

	q.err = errors.New("redis down")
	require.Equal(t, 1, NewJobsCLI(q, q).Command(context.Background(), Options{Args: []string{"queue"}, Stdout: stdout, Stderr: new(bytes.Buffer)}))
}

func TestUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	require.Equal(t, 2, NewJobsCLI(nil, nil).Command(context.Background(), Options{Stderr: stderr}))
	require.Contains(t, stderr.String(), "usage")
}
