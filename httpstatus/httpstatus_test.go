package httpstatus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cncmotion/motion"
	"cncmotion/motionloop"
)

type fakeSource struct{ status motionloop.Status }

func (f fakeSource) Latest() motionloop.Status { return f.status }

func TestHandleStatusReturnsLatestSnapshot(t *testing.T) {
	src := fakeSource{status: motionloop.Status{Mode: motion.ModeFree, MotionError: true}}
	s := New(src, 50*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var got motionloop.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != motion.ModeFree || !got.MotionError {
		t.Errorf("got %+v, want Mode=ModeFree MotionError=true", got)
	}
}

func TestHandleJointsReportsPerJointFields(t *testing.T) {
	var st motionloop.Status
	st.JointPos[0] = 12.5
	st.JointFerrored[1] = true
	st.Homed[2] = true
	src := fakeSource{status: st}
	s := New(src, 50*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/joints", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var joints []jointStatus
	if err := json.NewDecoder(rec.Body).Decode(&joints); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if joints[0].Position != 12.5 {
		t.Errorf("joints[0].Position = %v, want 12.5", joints[0].Position)
	}
	if !joints[1].Ferrored {
		t.Errorf("joints[1].Ferrored = false, want true")
	}
	if !joints[2].Homed {
		t.Errorf("joints[2].Homed = false, want true")
	}
}

func TestHandleErrorsAggregatesFerror(t *testing.T) {
	var st motionloop.Status
	st.JointFerrored[2] = true
	src := fakeSource{status: st}
	s := New(src, 50*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/errors", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var es errorStatus
	if err := json.NewDecoder(rec.Body).Decode(&es); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !es.AnyFerrored {
		t.Errorf("AnyFerrored = false, want true")
	}
}
