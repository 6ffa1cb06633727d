package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func retiredTask() *task.ActionableTask {
	t := task.NewActionableTask("lab.order", "lab.results", nil, time.Date(2026, 2, 3, 23, 30, 0, 0, time.UTC))
	t.Status = task.StatusFinalised
	t.Completion.Finalised = true
	return t
}

func TestS3Archiver_WritesDatedJSON(t *testing.T) {
	client := &fakePutter{}
	a := newS3Archiver(client, S3Config{Bucket: "petasos-archive", Prefix: "tasks"})
	rt := retiredTask()

	require.NoError(t, a.Archive(context.Background(), rt))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "petasos-archive", aws.ToString(in.Bucket))
	assert.Equal(t, "tasks/2026/02/03/"+rt.ID.ID+".json", aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Equal(t, "FINALISED", in.Metadata["task-status"])

	var decoded task.ActionableTask
	require.NoError(t, json.Unmarshal(client.bodies[0], &decoded))
	assert.Equal(t, rt.ID, decoded.ID)
	assert.True(t, decoded.Completion.Finalised)
}

func TestS3Archiver_Errors(t *testing.T) {
	boom := errors.New("access denied")
	a := newS3Archiver(&fakePutter{err: boom}, S3Config{Bucket: "b"})

	err := a.Archive(context.Background(), retiredTask())
	assert.True(t, errors.Is(err, boom))

	err = a.Archive(context.Background(), &task.ActionableTask{})
	assert.True(t, errors.Is(err, task.ErrMissingTaskID))

	_, err = NewS3Archiver(context.Background(), S3Config{})
	assert.True(t, errors.Is(err, ErrNoBucket))
}

func TestMemoryAndChain(t *testing.T) {
	mem := NewMemory()
	boom := errors.New("unavailable")
	chain := Chain{mem, nil, failing{boom}, Nop{}}

	rt := retiredTask()
	err := chain.Archive(context.Background(), rt)
	assert.True(t, errors.Is(err, boom), "errors are joined")
	assert.Equal(t, 1, mem.Len(), "later failures do not stop earlier archivers")

	got := mem.Get(rt.ID)
	require.NotNil(t, got)
	got.Status = task.StatusWaiting
	assert.Equal(t, task.StatusFinalised, mem.Get(rt.ID).Status, "archived copy is isolated")

	assert.Nil(t, mem.Get(task.NewTaskID("")))
	assert.NoError(t, OrNop(nil).Archive(context.Background(), rt))
}

type failing struct{ err error }

func (f failing) Archive(context.Context, *task.ActionableTask) error { return f.err }
