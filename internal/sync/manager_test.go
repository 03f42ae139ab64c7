package sync_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	deeremocks "github.com/agroplanner/opscenter-sync/internal/deere/mocks"
	"github.com/agroplanner/opscenter-sync/internal/models"
	storemocks "github.com/agroplanner/opscenter-sync/internal/store/mocks"
	syncpkg "github.com/agroplanner/opscenter-sync/internal/sync"
)

var (
	testMachines = []models.Machine{
		{ID: "m1", Name: "Tractor A"},
		{ID: "m2", Name: "Combine B"},
	}
	testFields = []models.Field{
		{ID: "f1", Name: "North 40"},
	}
)

func TestPerformSync(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := deeremocks.NewMockClient(ctrl)
	st := storemocks.NewMockStore(ctrl)

	client.EXPECT().ListMachines(gomock.Any()).Return(testMachines, nil)
	client.EXPECT().ListFields(gomock.Any()).Return(testFields, nil)
	st.EXPECT().UpsertMachines(gomock.Any(), testMachines).Return(2, nil)
	st.EXPECT().UpsertFields(gomock.Any(), testFields).Return(1, nil)

	run := syncpkg.NewManager(client, st).PerformSync(context.Background())

	require.NotNil(t, run)
	assert.True(t, run.Succeeded())
	assert.Equal(t, 2, run.MachinesSynced)
	assert.Equal(t, 1, run.FieldsSynced)
	assert.NotEqual(t, run.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
}

func TestPerformSyncMachineFailureCommitsFields(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := deeremocks.NewMockClient(ctrl)
	st := storemocks.NewMockStore(ctrl)

	client.EXPECT().ListMachines(gomock.Any()).Return(nil, fmt.Errorf("equipment API unavailable"))
	client.EXPECT().ListFields(gomock.Any()).Return(testFields, nil)
	// A failed machine fetch must not block the field commit
	st.EXPECT().UpsertFields(gomock.Any(), testFields).Return(1, nil)

	run := syncpkg.NewManager(client, st).PerformSync(context.Background())

	assert.False(t, run.Succeeded())
	assert.Equal(t, 0, run.MachinesSynced)
	assert.Contains(t, run.MachinesError, "equipment API unavailable")
	assert.Equal(t, 1, run.FieldsSynced)
	assert.Empty(t, run.FieldsError)
}

func TestPerformSyncFieldFailureCommitsMachines(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := deeremocks.NewMockClient(ctrl)
	st := storemocks.NewMockStore(ctrl)

	client.EXPECT().ListMachines(gomock.Any()).Return(testMachines, nil)
	client.EXPECT().ListFields(gomock.Any()).Return(nil, fmt.Errorf("fields API unavailable"))
	st.EXPECT().UpsertMachines(gomock.Any(), testMachines).Return(2, nil)

	run := syncpkg.NewManager(client, st).PerformSync(context.Background())

	assert.False(t, run.Succeeded())
	assert.Equal(t, 2, run.MachinesSynced)
	assert.Contains(t, run.FieldsError, "fields API unavailable")
}

func TestPerformSyncStoreFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := deeremocks.NewMockClient(ctrl)
	st := storemocks.NewMockStore(ctrl)

	client.EXPECT().ListMachines(gomock.Any()).Return(testMachines, nil)
	client.EXPECT().ListFields(gomock.Any()).Return(testFields, nil)
	st.EXPECT().UpsertMachines(gomock.Any(), testMachines).Return(0, fmt.Errorf("connection lost"))
	st.EXPECT().UpsertFields(gomock.Any(), testFields).Return(1, nil)

	run := syncpkg.NewManager(client, st).PerformSync(context.Background())

	assert.False(t, run.Succeeded())
	assert.Contains(t, run.MachinesError, "connection lost")
	assert.Equal(t, 1, run.FieldsSynced)
}

func TestPerformSyncRunsHalvesConcurrently(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := deeremocks.NewMockClient(ctrl)
	st := storemocks.NewMockStore(ctrl)

	const halfDelay = 100 * time.Millisecond
	client.EXPECT().ListMachines(gomock.Any()).DoAndReturn(func(context.Context) ([]models.Machine, error) {
		time.Sleep(halfDelay)
		return testMachines, nil
	})
	client.EXPECT().ListFields(gomock.Any()).DoAndReturn(func(context.Context) ([]models.Field, error) {
		time.Sleep(halfDelay)
		return testFields, nil
	})
	st.EXPECT().UpsertMachines(gomock.Any(), testMachines).Return(2, nil)
	st.EXPECT().UpsertFields(gomock.Any(), testFields).Return(1, nil)

	start := time.Now()
	run := syncpkg.NewManager(client, st).PerformSync(context.Background())

	assert.True(t, run.Succeeded())
	assert.Less(t, time.Since(start), 2*halfDelay, "halves must not run sequentially")
}
