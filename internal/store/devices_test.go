package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deckd/internal/device"
)

func TestDeviceUpsertAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	info := device.ProntoKeyInfo("01")
	require.NoError(t, s.UpsertDevice(ctx, info))

	got, err := s.ReadDevice(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	info.Name = "Renamed"
	require.NoError(t, s.UpsertDevice(ctx, info))
	got, err = s.ReadDevice(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	_, err = s.ReadDevice(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDevicesOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, addr := range []string{"c", "a", "b"} {
		require.NoError(t, s.UpsertDevice(ctx, device.ProntoKeyInfo(addr)))
	}

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "pk-a", devices[0].ID)
	assert.Equal(t, "pk-c", devices[2].ID)
}

func TestSelectedProfileDefaults(t *testing.T) {
	ctx := context.Background()

	s := createTestStore(t)
	id, err := s.SelectedProfile(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfileID, id)

	s = createTestStore(t, WithDefaultProfile("Main"))
	id, err = s.SelectedProfile(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "Main", id)
}

func TestSelectProfile(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	info := device.ProntoKeyInfo("01")

	assert.ErrorIs(t, s.SelectProfile(ctx, info.ID, "Work"), ErrNotFound, "profile missing")

	_, err := s.EnsureProfile(ctx, info, "Work")
	require.NoError(t, err)
	assert.ErrorIs(t, s.SelectProfile(ctx, info.ID, "Work"), ErrNotFound, "device missing")

	require.NoError(t, s.UpsertDevice(ctx, info))
	require.NoError(t, s.SelectProfile(ctx, info.ID, "Work"))

	id, err := s.SelectedProfile(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", id)

	// Re-registering the device keeps the selection.
	require.NoError(t, s.UpsertDevice(ctx, info))
	id, err = s.SelectedProfile(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", id)
}
