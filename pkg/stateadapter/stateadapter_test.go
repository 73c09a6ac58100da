package stateadapter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryAdapterLoadMissingKey(t *testing.T) {
	a := NewMemoryAdapter()
	v, ok, err := a.Load("nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestMemoryAdapterSaveThenLoad(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Save("chain-0", []byte("42")))
	v, ok, err := a.Load("chain-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("42"), v)
}

func TestMemoryAdapterDeleteThenLoadReportsMissing(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Save("chain-0", []byte("42")))
	require.NoError(t, a.Delete("chain-0"))

	v, ok, err := a.Load("chain-0")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestMemoryAdapterSaveAfterDeleteUndeletesKey(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Save("chain-0", []byte("42")))
	require.NoError(t, a.Delete("chain-0"))
	require.NoError(t, a.Save("chain-0", []byte("43")))

	v, ok, err := a.Load("chain-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("43"), v)
}

func TestDiskAdapterPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a, err := NewDiskAdapter(dir)
	require.NoError(t, err)
	require.NoError(t, a.Save("chain-0", []byte("42")))

	b, err := NewDiskAdapter(dir)
	require.NoError(t, err)
	v, ok, err := b.Load("chain-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("42"), v)
}

func TestDiskAdapterDeleteRemovesFileAndLoad(t *testing.T) {
	dir := t.TempDir()
	a, err := NewDiskAdapter(dir)
	require.NoError(t, err)
	require.NoError(t, a.Save("chain-0", []byte("42")))
	require.FileExists(t, filepath.Join(dir, "chain-0"))

	require.NoError(t, a.Delete("chain-0"))
	require.NoFileExists(t, filepath.Join(dir, "chain-0"))

	v, ok, err := a.Load("chain-0")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestDiskAdapterDeleteMissingKeyIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	a, err := NewDiskAdapter(dir)
	require.NoError(t, err)
	require.NoError(t, a.Delete("never-saved"))
}
