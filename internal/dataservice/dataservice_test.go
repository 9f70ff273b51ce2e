package dataservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wellspace/internal/entity"
)

func newService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wells/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proj", r.URL.Query().Get("projectPath"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"wells":[
			{"id":"w1","name":"Well 1","path":"/proj/10_WellData/Well 1.ptrc"},
			{"well_name":"Legacy"},
			{}
		]}`))
	})
	mux.HandleFunc("/api/wells/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("wellPath") {
		case "/proj/10_WellData/Well 1.ptrc":
			_, _ = w.Write([]byte(`{"datasets":[{"name":"WIRE","type":"Continuous","well_logs":[{"name":"GR"},{"name":"NPHI"}]}]}`))
		case "/proj/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"datasets":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no such well"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEntitiesCanonicalized(t *testing.T) {
	srv := newService(t)
	c := NewClient(srv.URL, srv.Client())

	refs, err := c.Entities(context.Background(), entity.Scope{Name: "proj", Path: "/proj"})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, entity.Ref{ID: "w1", Name: "Well 1", Path: "/proj/10_WellData/Well 1.ptrc", Scope: "/proj"}, refs[0])
	assert.Equal(t, entity.Ref{ID: "Legacy", Name: "Legacy", Path: "/proj/Legacy", Scope: "/proj"}, refs[1])
}

func TestDatasets(t *testing.T) {
	srv := newService(t)
	c := NewClient(srv.URL, srv.Client())

	ds, err := c.Datasets(context.Background(), entity.Ref{ID: "w1", Path: "/proj/10_WellData/Well 1.ptrc"})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, []string{"GR", "NPHI"}, ds[0].LogNames())

	_, err = c.Datasets(context.Background(), entity.Ref{ID: "x", Path: "/proj/x"})
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestDatasetsHonoursDeadline(t *testing.T) {
	srv := newService(t)
	c := NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Datasets(ctx, entity.Ref{ID: "s", Path: "/proj/slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeGate(t *testing.T) {
	f := NewFake()
	f.SetDatasets("A", Dataset{Name: "WIRE"})
	release := f.Gate("A")

	done := make(chan []Dataset, 1)
	go func() {
		ds, _ := f.Datasets(context.Background(), entity.Ref{ID: "A"})
		done <- ds
	}()

	select {
	case <-done:
		t.Fatal("gated call returned early")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	ds := <-done
	assert.Equal(t, "WIRE", ds[0].Name)
	assert.Equal(t, 1, f.Calls("A"))
}
