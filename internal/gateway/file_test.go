package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	gw, err := OpenFile(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan ChangeEvent, 16)
	require.NoError(t, gw.Watch(ctx, func(e ChangeEvent) { events <- e }))

	require.NoError(t, gw.Save(ctx, sampleSnapshot("/proj", "shared")))

	waitEvent := func(removed bool) ChangeEvent {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case e := <-events:
				if e.LayoutName == "shared" && e.Removed == removed {
					return e
				}
			case <-deadline:
				t.Fatalf("no event (removed=%v)", removed)
			}
		}
	}

	e := waitEvent(false)
	assert.Equal(t, SessionID("/proj"), e.Session)

	require.NoError(t, gw.Delete(ctx, "/proj", "shared"))
	waitEvent(true)
}

func TestFileListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	gw, err := OpenFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, gw.Save(ctx, sampleSnapshot("/proj", "ok")))
	session := filepath.Join(dir, SessionID("/proj"))
	require.NoError(t, os.WriteFile(filepath.Join(session, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(session, "notes.txt"), []byte("hi"), 0644))

	list, err := gw.List(ctx, "/proj")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].LayoutName)

	_, err = gw.Load(ctx, "/proj", "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
