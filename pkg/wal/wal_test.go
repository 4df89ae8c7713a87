package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Seq  int    `json:"seq"`
	Note string `json:"note"`
}

func collect(t *testing.T, l *Log[entry]) []entry {
	t.Helper()
	var got []entry
	require.NoError(t, l.Replay(func(e entry) error {
		got = append(got, e)
		return nil
	}))
	return got
}

func TestLogAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	l, err := Open[entry](path)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Append(entry{Seq: i, Note: "entry"}))
	}
	assert.Equal(t, 3, l.Len())
	require.NoError(t, l.Close())

	reopened, err := Open[entry](path)
	require.NoError(t, err)
	defer reopened.Close()

	got := collect(t, reopened)
	require.Len(t, got, 3)
	assert.Equal(t, entry{Seq: 1, Note: "entry"}, got[0])
	assert.Equal(t, 3, got[2].Seq)

	// 讀完之後仍可繼續追加
	require.NoError(t, reopened.Append(entry{Seq: 4}))
	assert.Equal(t, 4, reopened.Len())
	assert.Len(t, collect(t, reopened), 4)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FileModePrivate, info.Mode().Perm())
}

func TestLogReplayEmpty(t *testing.T) {
	l, err := Open[entry](filepath.Join(t.TempDir(), "empty.log"))
	require.NoError(t, err)
	defer l.Close()

	assert.Empty(t, collect(t, l))
	assert.Zero(t, l.Len())
}

func TestLogReplayTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1}\n{\"seq\":2}\n{\"seq\":3,\"no"), FileModePrivate))

	l, err := Open[entry](path)
	require.NoError(t, err)
	defer l.Close()

	got := collect(t, l)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Seq)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"seq\":1}\n{\"seq\":2}\n", string(raw))

	require.NoError(t, l.Append(entry{Seq: 3}))
	assert.Len(t, collect(t, l), 3, "appends after the torn record land on a clean line")
}

func TestLogReplayCorruptedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1}\n{not-json}\n{\"seq\":3}\n"), FileModePrivate))

	l, err := Open[entry](path)
	require.NoError(t, err)
	defer l.Close()

	err = l.Replay(func(entry) error { return nil })
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLogReplayStopsOnCallbackError(t *testing.T) {
	l, err := Open[entry](filepath.Join(t.TempDir(), "stop.log"))
	require.NoError(t, err)
	defer l.Close()
	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Append(entry{Seq: i}))
	}

	stop := errors.New("sequence gap")
	seen := 0
	err = l.Replay(func(e entry) error {
		seen++
		if e.Seq == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 2, seen)
}
