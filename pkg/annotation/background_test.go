package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

func TestQueuePrepare(t *testing.T) {
	f := newFixture(t, "Systolic heart failure, given aspirin for a cold.")
	ctx := context.Background()
	doc := f.docs[0]

	_, err := f.svc.QueuePrepare(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{})
	require.Error(t, err, "not enabled yet")

	runner := jobs.New(f.st, jobs.Options{})
	f.svc.EnableBackgroundPrepare(runner)

	task, err := f.svc.QueuePrepare(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{})
	require.NoError(t, err)
	assert.Equal(t, jobs.QueuePrepare, task.Queue)
	assert.Empty(t, f.annotations(t, doc.ID), "nothing runs before the workers do")

	ran, err := runner.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	done, err := f.st.Tasks().Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, done.Status)
	assert.Equal(t, []string{"C11", "C02", "C04"}, labels(f.annotations(t, doc.ID)))

	_, err = f.svc.QueuePrepare(ctx, f.user.ID, 999, []uint{doc.ID}, PrepareOptions{})
	assert.Error(t, err)
}
