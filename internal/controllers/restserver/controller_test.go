package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/remotescope/internal/types"
	"github.com/chrissnell/remotescope/pkg/config"
	"go.uber.org/zap"
)

type fakeMount struct {
	name             string
	gotoRA, gotoDEC  float64
	gotos            int
	syncs            int
	aborts           int
	err              error
}

func (f *fakeMount) Name() string { return f.name }

func (f *fakeMount) Goto(ra, dec float64) error {
	f.gotos++
	f.gotoRA, f.gotoDEC = ra, dec
	return f.err
}

func (f *fakeMount) Sync(ra, dec float64) error {
	f.syncs++
	return f.err
}

func (f *fakeMount) Abort() error {
	f.aborts++
	return f.err
}

type fakeHistory struct {
	recs []types.SlewRecord
	err  error
}

func (f *fakeHistory) Recent(limit int) ([]types.SlewRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func newTestController(t *testing.T, m *fakeMount, hist SlewHistory) (*Controller, chan types.MountStatus) {
	t.Helper()

	statusChan := make(chan types.MountStatus, 16)
	var wg sync.WaitGroup
	ctrl, err := NewController(context.Background(), &wg, config.RESTServerData{Port: 8080},
		[]MountService{m}, hist, statusChan, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return ctrl, statusChan
}

func TestNewControllerRequiresMounts(t *testing.T) {
	var wg sync.WaitGroup
	_, err := NewController(context.Background(), &wg, config.RESTServerData{},
		nil, nil, make(chan types.MountStatus), zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected error with no mounts configured")
	}
}

func TestPostGoto(t *testing.T) {
	m := &fakeMount{name: "testmount"}
	ctrl, _ := newTestController(t, m, nil)

	body := `{"mount":"testmount","ra_hours":8.5,"dec_degrees":45}`
	req := httptest.NewRequest(http.MethodPost, "/api/goto", strings.NewReader(body))
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	if m.gotos != 1 || m.gotoRA != 8.5 || m.gotoDEC != 45 {
		t.Errorf("mount saw goto(%v,%v) x%d, want goto(8.5,45) x1", m.gotoRA, m.gotoDEC, m.gotos)
	}
}

func TestPostGotoDefaultsSingleMount(t *testing.T) {
	m := &fakeMount{name: "testmount"}
	ctrl, _ := newTestController(t, m, nil)

	// No mount name in the body: with a single mount configured it is implied.
	body := `{"ra_hours":1,"dec_degrees":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/goto", strings.NewReader(body))
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
}

func TestPostGotoValidation(t *testing.T) {
	m := &fakeMount{name: "testmount"}
	ctrl, _ := newTestController(t, m, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ra out of range", `{"ra_hours":24,"dec_degrees":0}`, http.StatusBadRequest},
		{"dec out of range", `{"ra_hours":0,"dec_degrees":91}`, http.StatusBadRequest},
		{"unknown mount", `{"mount":"nope","ra_hours":0,"dec_degrees":0}`, http.StatusNotFound},
		{"garbage body", `{`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/goto", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			ctrl.Server.Handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
	if m.gotos != 0 {
		t.Errorf("mount saw %d gotos from invalid requests", m.gotos)
	}
}

func TestPostGotoMountFailure(t *testing.T) {
	m := &fakeMount{name: "testmount", err: errors.New("mount is not responding")}
	ctrl, _ := newTestController(t, m, nil)

	body := `{"ra_hours":1,"dec_degrees":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/goto", strings.NewReader(body))
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestPostAbort(t *testing.T) {
	m := &fakeMount{name: "testmount"}
	ctrl, _ := newTestController(t, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/abort", nil)
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if m.aborts != 1 {
		t.Errorf("mount saw %d aborts, want 1", m.aborts)
	}
}

func TestGetStatusAfterFanOut(t *testing.T) {
	m := &fakeMount{name: "testmount"}
	ctrl, statusChan := newTestController(t, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.ctx = ctx
	ctrl.wg.Add(1)
	go ctrl.fanOutStatus()

	statusChan <- types.MountStatus{
		Timestamp: time.Now(),
		MountName: "testmount",
		RAHours:   8.5,
		State:     "tracking",
	}

	// Wait for the fan-out goroutine to pick it up.
	deadline := time.After(2 * time.Second)
	for {
		ctrl.latestMu.RLock()
		_, ok := ctrl.latest["testmount"]
		ctrl.latestMu.RUnlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("status never reached the snapshot map")
		case <-time.After(10 * time.Millisecond):
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status/testmount", nil)
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var st types.MountStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.RAHours != 8.5 || st.State != "tracking" {
		t.Errorf("snapshot = %+v, want RA 8.5 tracking", st)
	}
}

func TestGetMountStatusUnknown(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeMount{name: "testmount"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status/other", nil)
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetSlews(t *testing.T) {
	hist := &fakeHistory{recs: []types.SlewRecord{
		{SessionID: "a", MountName: "testmount", Result: "converged"},
		{SessionID: "b", MountName: "testmount", Result: "aborted"},
	}}
	ctrl, _ := newTestController(t, &fakeMount{name: "testmount"}, hist)

	req := httptest.NewRequest(http.MethodGet, "/api/slews?limit=1", nil)
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var recs []types.SlewRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SessionID != "a" {
		t.Errorf("slews = %+v, want just session a", recs)
	}
}

func TestGetSlewsWithoutStorage(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeMount{name: "testmount"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/slews", nil)
	rr := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when storage is not configured", rr.Code)
	}
}
