package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
	"github.com/gorilla/websocket"
)

const stationYAML = `
POSITIONER: {PORT: /dev/fake0, BAUDRATE: 9600}
RECEIVER: {PORT: /dev/fake1, BAUDRATE: 9600, COMMAND: "RSSI?"}
SCAN: {START_RADIUS: 1.0, MIN_RADIUS: 0.05, ARC_STEP: 0.1, DWELL_MS: 0}
TARGETS:
  - {NAME: beacon, AZ: 100, EL: 30}
AVG: 1
IGNORE: 0
MOVE_TIMEOUT_MS: 1000
`

type simPositioner struct {
	mu     sync.Mutex
	at     models.Direction
	gotos  []models.Direction
	settle time.Duration
}

func (p *simPositioner) Goto(d models.Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.at = d
	p.gotos = append(p.gotos, d)
	return nil
}

func (p *simPositioner) Position() (models.Direction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.at, nil
}

func (p *simPositioner) WaitArrived(ctx context.Context, target models.Direction, tolerance float64, timeout time.Duration) (models.Direction, error) {
	if err := ctx.Err(); err != nil {
		return models.Direction{}, err
	}
	p.mu.Lock()
	settle := p.settle
	p.mu.Unlock()
	if settle > 0 {
		time.Sleep(settle)
	}
	return p.Position()
}

func (p *simPositioner) Stop() error              { return nil }
func (p *simPositioner) Version() (string, error) { return "SIM 1.0", nil }
func (p *simPositioner) Close() error             { return nil }

func (p *simPositioner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gotos)
}

func (p *simPositioner) moves() []models.Direction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Direction(nil), p.gotos...)
}

type simReceiver struct {
	pos  *simPositioner
	peak models.Direction
}

func (r *simReceiver) ReadSignal() (float64, error) {
	at, _ := r.pos.Position()
	return -math.Hypot(at.Az-r.peak.Az, at.El-r.peak.El), nil
}

func (r *simReceiver) Close() error { return nil }

type harness struct {
	t   *testing.T
	ts  *httptest.Server
	srv *Server
	pos *simPositioner
}

func newHarness(t *testing.T, peak models.Direction) *harness {
	t.Helper()
	pos := &simPositioner{}
	connect := func(p *models.PARAMETERS) (*modern.Session, error) {
		return &modern.Session{Params: p, Positioner: pos, Receiver: &simReceiver{pos: pos, peak: peak}}, nil
	}
	srv := New(WithConnector(connect), WithWebRoot(t.TempDir()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
	})
	return &harness{t: t, ts: ts, srv: srv, pos: pos}
}

func (h *harness) do(method, path string, body interface{}, out interface{}) int {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	if err != nil {
		h.t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) upload(path, filename, content string) UploadResponse {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		h.t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	resp, err := http.Post(h.ts.URL+path, mw.FormDataContentType(), &buf)
	if err != nil {
		h.t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("upload status %d: %s", resp.StatusCode, b)
	}
	var up UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		h.t.Fatal(err)
	}
	return up
}

func (h *harness) connect() ConnectResponse {
	h.t.Helper()
	return h.connectWith(stationYAML)
}

func (h *harness) connectWith(station string) ConnectResponse {
	h.t.Helper()
	up := h.upload("/api/upload/config", "station.yaml", station)
	var cr ConnectResponse
	if code := h.do(http.MethodPost, "/api/connect", ConnectRequest{ConfigID: up.ConfigID}, &cr); code != 200 {
		h.t.Fatalf("connect status %d", code)
	}
	return cr
}

// dial opens a websocket and waits for the hub greeting.
func (h *harness) dial(path string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.ts.URL, "http")+path, nil)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	if msg := readMsg(h.t, conn); msg.Type != "hello" {
		h.t.Fatalf("first message %q", msg.Type)
	}
	return conn
}

type rawMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMsg(t *testing.T, conn *websocket.Conn) rawMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m rawMsg
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	return m
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) (rawMsg, []rawMsg) {
	t.Helper()
	var seen []rawMsg
	for {
		m := readMsg(t, conn)
		if m.Type == "error" {
			t.Fatalf("server error: %s", m.Data)
		}
		if m.Type == typ {
			return m, seen
		}
		seen = append(seen, m)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, models.Direction{})
	var hr HealthResponse
	if code := h.do(http.MethodGet, "/api/health", nil, &hr); code != 200 || !hr.OK {
		t.Fatalf("status %d body %+v", code, hr)
	}
	if code := h.do(http.MethodPost, "/api/health", nil, nil); code != 404 {
		t.Fatalf("POST health status %d", code)
	}
}

func TestCalibrationScanOverWebSocket(t *testing.T) {
	target := models.Direction{Az: 100, El: 30}
	path, err := modern.GenerateSpiral(models.ScanConfig{StartRadius: 1.0, MinRadius: 0.05, ArcStep: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	peak := target.Add(path[3])
	h := newHarness(t, peak)

	cr := h.connect()
	if !cr.Connected || cr.Version != "SIM 1.0" || cr.Targets != 1 {
		t.Fatalf("connect %+v", cr)
	}

	var plan CalPlanResponse
	if code := h.do(http.MethodGet, "/api/calibration/plan", nil, &plan); code != 200 {
		t.Fatalf("plan status %d", code)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].Target != "beacon" || plan.Steps[1].Kind != string(modern.CalStepSolve) {
		t.Fatalf("plan %+v", plan.Steps)
	}

	ws := h.dial("/ws/calibration")
	if code := h.do(http.MethodPost, "/api/calibration/startStep", CalStartStepRequest{StepIndex: 0}, nil); code != 200 {
		t.Fatalf("startStep status %d", code)
	}
	done, samples := readUntil(t, ws, "stepDone")
	if len(samples) != len(path) {
		t.Fatalf("got %d sample messages, want %d", len(samples), len(path))
	}
	var payload struct {
		Observation models.CalibrationObservation `json:"observation"`
		Result      searchDTO                     `json:"result"`
	}
	if err := json.Unmarshal(done.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Result.BestIndex != 3 || payload.Result.BestStrength == nil {
		t.Fatalf("result %+v", payload.Result)
	}
	if math.Abs(payload.Observation.Peak.Az-peak.Az) > 1e-9 || math.Abs(payload.Observation.Peak.El-peak.El) > 1e-9 {
		t.Fatalf("peak %+v want %+v", payload.Observation.Peak, peak)
	}

	var obs ObservationsResponse
	h.do(http.MethodGet, "/api/calibration/observations", nil, &obs)
	if len(obs.Observations) != 1 || obs.Observations[0].Target != "beacon" {
		t.Fatalf("observations %+v", obs.Observations)
	}
}

func TestManualObservationsSolveAndCorrect(t *testing.T) {
	h := newHarness(t, models.Direction{})
	set := []ObservationRequest{
		{Target: "a", Platonic: models.Direction{Az: 235.15, El: 42.12}, Peak: models.Direction{Az: 236.78, El: 41.69}},
		{Target: "b", Platonic: models.Direction{Az: 197.31, El: 38.41}, Peak: models.Direction{Az: 198.51, El: 38.93}},
	}

	var apiErr APIError
	if code := h.do(http.MethodPost, "/api/calibration/solve", nil, &apiErr); code != 400 || apiErr.Error == "" {
		t.Fatalf("solve without data: status %d %+v", code, apiErr)
	}

	for _, o := range set {
		if code := h.do(http.MethodPost, "/api/calibration/observation", o, nil); code != 200 {
			t.Fatalf("observation status %d", code)
		}
	}
	var sr SolveResponse
	if code := h.do(http.MethodPost, "/api/calibration/solve", nil, &sr); code != 200 {
		t.Fatalf("solve status %d", code)
	}
	if !sr.Degenerate || sr.Model.Rank != 4 || sr.ModelID == "" || len(sr.Residuals) != 2 {
		t.Fatalf("solve %+v", sr)
	}

	var cr CorrectResponse
	req := CorrectRequest{Directions: []models.Direction{set[0].Platonic, set[1].Platonic}}
	if code := h.do(http.MethodPost, "/api/correct", req, &cr); code != 200 {
		t.Fatalf("correct status %d", code)
	}
	if cr.ModelID != sr.ModelID {
		t.Fatalf("correct used model %q want latest %q", cr.ModelID, sr.ModelID)
	}
	for i, d := range cr.Corrected {
		if math.Abs(d.Az-set[i].Peak.Az) > 1e-9 || math.Abs(d.El-set[i].Peak.El) > 1e-9 {
			t.Fatalf("corrected[%d]=%+v want %+v", i, d, set[i].Peak)
		}
	}

	resp, err := http.Get(h.ts.URL + "/api/download?id=" + sr.ModelID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var pf modern.PointingFile
	if err := json.NewDecoder(resp.Body).Decode(&pf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "pointing.json") || len(pf.OBSERVATIONS) != 2 {
		t.Fatalf("download %q %+v", resp.Header.Get("Content-Disposition"), pf)
	}

	if code := h.do(http.MethodPost, "/api/calibration/reset", nil, nil); code != 200 {
		t.Fatalf("reset status %d", code)
	}
	var obs ObservationsResponse
	h.do(http.MethodGet, "/api/calibration/observations", nil, &obs)
	if len(obs.Observations) != 0 {
		t.Fatalf("observations after reset: %d", len(obs.Observations))
	}
}

func TestTrackAppliesStoredModel(t *testing.T) {
	h := newHarness(t, models.Direction{})
	h.connect()

	up := h.upload("/api/upload/model", "pointing.json", `{"MODEL":{"AZ0":0.5,"EL0":-0.25,"RANK":7}}`)
	ws := h.dial("/ws/track")
	req := TrackStartRequest{
		ModelID:    up.ConfigID,
		Directions: []models.Direction{{Az: 10, El: 20}, {Az: 11, El: 21}},
	}
	if code := h.do(http.MethodPost, "/api/track/start", req, nil); code != 200 {
		t.Fatalf("track start status %d", code)
	}
	_, progress := readUntil(t, ws, "done")
	if len(progress) != 5 {
		t.Fatalf("progress messages %d want 5", len(progress))
	}
	if h.pos.count() != 2 {
		t.Fatalf("positioner moves %d", h.pos.count())
	}
	at, _ := h.pos.Position()
	if at != (models.Direction{Az: 11.5, El: 20.75}) {
		t.Fatalf("final position %+v", at)
	}
}

func TestRequiresConnection(t *testing.T) {
	h := newHarness(t, models.Direction{})
	if code := h.do(http.MethodGet, "/api/calibration/plan", nil, nil); code != 400 {
		t.Fatalf("plan status %d", code)
	}
	if code := h.do(http.MethodPost, "/api/calibration/startStep", CalStartStepRequest{}, nil); code != 400 {
		t.Fatalf("startStep status %d", code)
	}
	if code := h.do(http.MethodPost, "/api/connect", ConnectRequest{ConfigID: "missing"}, nil); code != 404 {
		t.Fatalf("connect status %d", code)
	}
	if code := h.do(http.MethodGet, "/api/download?id=missing", nil, nil); code != 404 {
		t.Fatalf("download status %d", code)
	}
}

func TestSecondScanWaitsForCancelledScan(t *testing.T) {
	const twoTargets = `
POSITIONER: {PORT: /dev/fake0, BAUDRATE: 9600}
RECEIVER: {PORT: /dev/fake1, BAUDRATE: 9600, COMMAND: "RSSI?"}
SCAN: {START_RADIUS: 1.0, MIN_RADIUS: 0.05, ARC_STEP: 0.1, DWELL_MS: 0}
TARGETS:
  - {NAME: beacon, AZ: 100, EL: 30}
  - {NAME: second, AZ: 140, EL: 50}
AVG: 1
IGNORE: 0
MOVE_TIMEOUT_MS: 1000
`
	h := newHarness(t, models.Direction{Az: 140, El: 50})
	h.pos.mu.Lock()
	h.pos.settle = 20 * time.Millisecond
	h.pos.mu.Unlock()
	h.connectWith(twoTargets)

	ws := h.dial("/ws/calibration")
	if code := h.do(http.MethodPost, "/api/calibration/startStep", CalStartStepRequest{StepIndex: 0}, nil); code != 200 {
		t.Fatalf("startStep 0 status %d", code)
	}
	readUntil(t, ws, "sample")
	if code := h.do(http.MethodPost, "/api/calibration/startStep", CalStartStepRequest{StepIndex: 1}, nil); code != 200 {
		t.Fatalf("startStep 1 status %d", code)
	}
	readUntil(t, ws, "stopped")
	done, _ := readUntil(t, ws, "stepDone")
	var payload struct {
		StepIndex   int                           `json:"stepIndex"`
		Observation models.CalibrationObservation `json:"observation"`
	}
	if err := json.Unmarshal(done.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.StepIndex != 1 || payload.Observation.Target != "second" {
		t.Fatalf("stepDone %+v", payload)
	}

	// All moves for the first target must precede every move for the second.
	moves := h.pos.moves()
	switched := false
	for i, m := range moves {
		second := m.Az > 120
		if switched && !second {
			t.Fatalf("move %d back to first target %+v after second scan started: %+v", i, m, moves)
		}
		switched = switched || second
	}
	if !switched {
		t.Fatalf("second scan never moved the dish: %+v", moves)
	}
	if last := moves[len(moves)-1]; last.Az != 140 || last.El != 50 {
		t.Fatalf("last move %+v want second target centre", last)
	}
}
