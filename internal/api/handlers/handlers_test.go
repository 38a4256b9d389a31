package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rajmehta89/call-agent-backend/internal/cache"
	"github.com/rajmehta89/call-agent-backend/internal/logger"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/stt"
	"github.com/rajmehta89/call-agent-backend/internal/providers/tts"
	"github.com/rajmehta89/call-agent-backend/internal/services"
	"github.com/rajmehta89/call-agent-backend/internal/session"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
)

type fakeEvents struct {
	got []services.CallEvent
	out services.EventOutcome
	err error
}

func (f *fakeEvents) HandleEvent(ctx context.Context, ev services.CallEvent) (services.EventOutcome, error) {
	f.got = append(f.got, ev)
	return f.out, f.err
}

type fakeDialer struct {
	configured bool
	got        []telephony.OutboundCall
	err        error
}

func (f *fakeDialer) Configured() bool { return f.configured }

func (f *fakeDialer) Call(ctx context.Context, call telephony.OutboundCall) (map[string]any, error) {
	f.got = append(f.got, call)
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"status": "queued"}, nil
}

type fakeCalls struct {
	mu  sync.Mutex
	got []models.CallData
}

func (f *fakeCalls) LogCall(ctx context.Context, phone, leadID string, d models.CallData) (*models.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, d)
	return &models.CallRecord{}, nil
}

type fakeFinalizer struct {
	mu      sync.Mutex
	reports []models.CallReport
}

func (f *fakeFinalizer) Finalize(ctx context.Context, r models.CallReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeFinalizer) Reports() []models.CallReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CallReport(nil), f.reports...)
}

func init() { gin.SetMode(gin.TestMode) }

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("bad json %q: %v", w.Body.String(), err)
	}
}

func piopiyRouter(h *PiopiyHandler) *gin.Engine {
	r := gin.New()
	r.POST("/python/inbound", h.Inbound)
	r.POST("/piopiy/events", h.Events)
	r.POST("/api/hangup-call", h.HangupCall)
	return r
}

func TestInboundStreamsToMediaSocket(t *testing.T) {
	h := NewPiopiyHandler("wss://agent.example.com/ws", cache.NewMemory(), nil, logger.Discard())
	w := post(piopiyRouter(h), "/python/inbound", `{"phone_number":"9876543210","lead_id":"L1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var pcmo []telephony.Action
	decode(t, w, &pcmo)
	if len(pcmo) != 1 || pcmo[0].Action != "stream" || pcmo[0].WSURL != "wss://agent.example.com/ws" {
		t.Fatalf("pcmo = %+v", pcmo)
	}
	opts := pcmo[0].Options
	if opts.ListenMode != "both" || !opts.StreamOnAnswer || opts.VoiceQuality != 8000 {
		t.Fatalf("options = %+v", opts)
	}
	if opts.ExtraParams["phone_number"] != "9876543210" || opts.ExtraParams["lead_id"] != "L1" {
		t.Fatalf("extra = %v", opts.ExtraParams)
	}
}

func TestPendingHangupAnswersOnce(t *testing.T) {
	flags := cache.NewMemory()
	r := piopiyRouter(NewPiopiyHandler("wss://agent.example.com/ws", flags, nil, logger.Discard()))

	w := post(r, "/api/hangup-call", `{"reason":"exit_intent"}`)
	var ack map[string]any
	decode(t, w, &ack)
	if ack["success"] != true || ack["message"] != "Call hangup initiated" {
		t.Fatalf("ack = %v", ack)
	}
	if action, _ := ack["action"].(map[string]any); action["hangup"] != true {
		t.Fatalf("action = %v", ack["action"])
	}

	w = post(r, "/python/inbound", "")
	if strings.TrimSpace(w.Body.String()) != `{"hangup":true}` {
		t.Fatalf("first inbound = %s", w.Body.String())
	}
	w = post(r, "/python/inbound", "")
	if strings.Contains(w.Body.String(), "hangup") {
		t.Fatalf("flag not cleared: %s", w.Body.String())
	}
}

func TestInboundWithoutWebSocketURL(t *testing.T) {
	w := post(piopiyRouter(NewPiopiyHandler("", nil, nil, logger.Discard())), "/python/inbound", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestEvents(t *testing.T) {
	ev := &fakeEvents{}
	r := piopiyRouter(NewPiopiyHandler("", nil, ev, logger.Discard()))

	w := post(r, "/piopiy/events", `{"call_id":"c1"}`)
	var body map[string]any
	decode(t, w, &body)
	if w.Code != http.StatusOK || body["note"] != "unknown event" {
		t.Fatalf("unknown event response = %d %v", w.Code, body)
	}
	if len(ev.got) != 0 {
		t.Fatal("unknown event reached the service")
	}

	w = post(r, "/piopiy/events", `{"event_type":"Hangup","to":"+91 98765-43210","duration":42,"call_id":"c1"}`)
	if w.Code != http.StatusOK || len(ev.got) != 1 {
		t.Fatalf("status = %d, events = %v", w.Code, ev.got)
	}
	got := ev.got[0]
	if got.Type != "hangup" || got.Phone != "+91 98765-43210" || got.Duration != 42 || got.CallID != "c1" {
		t.Fatalf("event = %+v", got)
	}

	ev.err = utils.E(utils.CodeUnavailable, "test", "store down", nil)
	if w := post(r, "/piopiy/events", `{"event":"answer","to":"1"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func callRouter(h *CallHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/make-call", h.MakeCall)
	r.POST("/api/call-hangup/:session_id", h.CallHangup)
	r.GET("/api/call-status/:session_id", h.CallStatus)
	r.GET("/api/call-turns/:session_id", h.CallTurns)
	r.GET("/api/active-calls", h.ActiveCalls)
	return r
}

type fakeTurns struct {
	limit int
}

func (f *fakeTurns) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error) {
	f.limit = limit
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, "fake", "session_id is required", nil)
	}
	return []models.CallTurn{
		{SessionID: sessionID, Role: "greeting", Content: "Hello"},
		{SessionID: sessionID, Role: "user", Content: "price please"},
	}, nil
}

func TestMakeCall(t *testing.T) {
	d := &fakeDialer{configured: true}
	calls := &fakeCalls{}
	meta := cache.NewMemory()
	r := callRouter(NewCallHandler(d, "https://agent.example.com/", meta, calls, session.NewRegistry(), logger.Discard()))

	w := post(r, "/api/make-call", `{"phone_number":"9876543210","lead_id":"L1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	id, _ := resp["session_id"].(string)
	if resp["success"] != true || id == "" {
		t.Fatalf("resp = %v", resp)
	}

	if len(d.got) != 1 {
		t.Fatal("dialer not called")
	}
	call := d.got[0]
	wantWS := "wss://agent.example.com/ws/" + id + "?lead_id=L1&phone_number=9876543210"
	if call.PCMO[0].WSURL != wantWS {
		t.Fatalf("ws url = %s, want %s", call.PCMO[0].WSURL, wantWS)
	}
	if call.HangupURL != "https://agent.example.com/api/call-hangup/"+id {
		t.Fatalf("hangup url = %s", call.HangupURL)
	}
	if call.ExtraParams["session"] != id || !call.Record {
		t.Fatalf("call = %+v", call)
	}

	if len(calls.got) != 1 || calls.got[0].Status != models.CallInitiated || calls.got[0].CallSessionID != id {
		t.Fatalf("logged = %+v", calls.got)
	}

	var cached telephony.CallMeta
	hit, _ := meta.GetJSON(context.Background(), cache.CallMetaKey(id), &cached)
	if !hit || cached.Phone != "9876543210" || cached.LeadID != "L1" {
		t.Fatalf("cached = %+v (hit %v)", cached, hit)
	}
}

func TestMakeCallValidation(t *testing.T) {
	r := callRouter(NewCallHandler(&fakeDialer{configured: true}, "", nil, nil, session.NewRegistry(), logger.Discard()))
	if w := post(r, "/api/make-call", `{"lead_id":"L1"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing phone: %d", w.Code)
	}
	if w := post(r, "/api/make-call", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", w.Code)
	}

	r = callRouter(NewCallHandler(&fakeDialer{}, "", nil, nil, session.NewRegistry(), logger.Discard()))
	if w := post(r, "/api/make-call", `{"phone_number":"1"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured: %d", w.Code)
	}

	var nilClient *telephony.Client
	r = callRouter(NewCallHandler(nilClient, "", nil, nil, session.NewRegistry(), logger.Discard()))
	if w := post(r, "/api/make-call", `{"phone_number":"1"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil client: %d", w.Code)
	}
}

func TestMakeCallProviderFailureClearsContext(t *testing.T) {
	d := &fakeDialer{configured: true, err: utils.E(utils.CodeUpstream, "Piopiy.Call", "piopiy returned an error", nil)}
	meta := cache.NewMemory()
	r := callRouter(NewCallHandler(d, "http://localhost:8080", meta, nil, session.NewRegistry(), logger.Discard()))

	if w := post(r, "/api/make-call", `{"phone_number":"1"}`); w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(d.got[0].PCMO[0].WSURL, "ws://localhost:8080/ws/") {
		t.Fatalf("ws url = %s", d.got[0].PCMO[0].WSURL)
	}
	var cached telephony.CallMeta
	if hit, _ := meta.GetJSON(context.Background(), cache.CallMetaKey(d.got[0].ExtraParams["session"]), &cached); hit {
		t.Fatal("call context kept after failed call")
	}
}

func TestCallStatusNotFound(t *testing.T) {
	r := callRouter(NewCallHandler(nil, "", nil, nil, session.NewRegistry(), logger.Discard()))
	req := httptest.NewRequest(http.MethodGet, "/api/call-status/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}

	if w := post(r, "/api/call-hangup/nope", ""); w.Code != http.StatusOK {
		t.Fatalf("hangup of unknown call = %d", w.Code)
	}
}

type fakeHistory map[string]*models.CallRecord

func (f fakeHistory) FindBySession(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	if rec, ok := f[sessionID]; ok {
		return rec, nil
	}
	return nil, utils.ErrNotFound
}

func TestCallStatusFallsBackToHistory(t *testing.T) {
	hist := fakeHistory{"done-1": {
		CallSessionID: "done-1",
		PhoneNumber:   "9876543210",
		Status:        models.CallCompleted,
		Duration:      42,
		InterestAnalysis: &models.InterestAnalysis{
			Status: models.Interested,
		},
	}}
	r := callRouter(NewCallHandler(nil, "", nil, nil, session.NewRegistry(), logger.Discard()).WithHistory(hist))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/call-status/done-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		Status   string  `json:"status"`
		Duration float64 `json:"duration"`
	}
	decode(t, w, &body)
	if body.Status != "completed" || body.Duration != 42 {
		t.Fatalf("body = %+v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/call-status/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d", w.Code)
	}
}

func TestCallTurns(t *testing.T) {
	h := NewCallHandler(nil, "", nil, nil, session.NewRegistry(), logger.Discard())
	r := callRouter(h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/call-turns/s-1", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("without turn log status = %d", w.Code)
	}

	turns := &fakeTurns{}
	r = callRouter(h.WithTurnLog(turns))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/call-turns/s-1?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		SessionID string `json:"session_id"`
		Count     int    `json:"count"`
	}
	decode(t, w, &body)
	if body.SessionID != "s-1" || body.Count != 2 || turns.limit != 5 {
		t.Fatalf("body = %+v, limit = %d", body, turns.limit)
	}
}

func TestMediaURL(t *testing.T) {
	m := telephony.CallMeta{SessionID: "s1", Phone: "+919876543210"}
	if got := MediaURL("http://h:8080", m); got != "ws://h:8080/ws/s1?lead_id=&phone_number=%2B919876543210" {
		t.Fatalf("got %s", got)
	}
}

// mediaServer wires the media socket and the call API to one registry, the way main does.
func mediaServer(t *testing.T, meta cache.Cache) (*httptest.Server, *session.Registry, *fakeFinalizer) {
	t.Helper()
	reg := session.NewRegistry()
	fin := &fakeFinalizer{}
	deps := session.Deps{
		STT:       stt.Simulated{},
		TTS:       tts.Simulated{PerChar: time.Millisecond},
		Finalizer: fin,
		Registry:  reg,
		Log:       logger.Discard(),
	}
	r := gin.New()
	media := NewMediaHandler(deps, meta, logger.Discard())
	calls := NewCallHandler(nil, "", nil, nil, reg, logger.Discard())
	r.GET("/ws", media.Stream)
	r.GET("/ws/:session_id", media.Stream)
	r.GET("/api/active-calls", calls.ActiveCalls)
	r.POST("/api/call-hangup/:session_id", calls.CallHangup)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg, fin
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	return conn
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestMediaStreamGreetsAndFinalizesOnClose(t *testing.T) {
	srv, reg, fin := mediaServer(t, nil)
	conn := dial(t, srv, "/ws/abc?phone_number=9876543210")

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var frame struct {
		Type string `json:"type"`
		Data struct {
			SampleRate int `json:"sampleRate"`
		} `json:"data"`
	}
	if mt != websocket.TextMessage || json.Unmarshal(data, &frame) != nil || frame.Type != "playStream" || frame.Data.SampleRate != 8000 {
		t.Fatalf("greeting frame = %s", data)
	}

	if _, ok := reg.Get("abc"); !ok {
		t.Fatal("session not registered")
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/active-calls", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var active struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&active)
	resp.Body.Close()
	if active.Count != 1 {
		t.Fatalf("active calls = %d", active.Count)
	}

	conn.Close()
	if !waitFor(func() bool { return len(fin.Reports()) == 1 }) {
		t.Fatal("call not finalized after disconnect")
	}
	r := fin.Reports()[0]
	if r.SessionID != "abc" || r.PhoneNumber != "9876543210" || r.Direction != models.DirectionInbound {
		t.Fatalf("report = %+v", r)
	}
	if reg.Len() != 0 {
		t.Fatal("session still registered")
	}
}

func TestMediaStreamUsesOutboundContext(t *testing.T) {
	meta := cache.NewMemory()
	_ = meta.SetJSON(context.Background(), cache.CallMetaKey("out-1"),
		telephony.CallMeta{SessionID: "out-1", Phone: "9876543210", LeadID: "L9"}, time.Minute)
	srv, _, fin := mediaServer(t, meta)

	conn := dial(t, srv, "/ws/out-1")
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+"/api/call-hangup/out-1", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if !waitFor(func() bool { return len(fin.Reports()) == 1 }) {
		t.Fatal("provider hangup did not end the call")
	}
	r := fin.Reports()[0]
	if r.Direction != models.DirectionOutbound || r.LeadID != "L9" || r.PhoneNumber != "9876543210" {
		t.Fatalf("report = %+v", r)
	}
	conn.Close()
}

func TestMediaStreamMetadataFrame(t *testing.T) {
	srv, reg, fin := mediaServer(t, nil)
	conn := dial(t, srv, "/ws")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"extra_params":{"session":"pbx-7","phone_number":"555","lead_id":"L2"}}`)); err != nil {
		t.Fatal(err)
	}
	if !waitFor(func() bool { _, ok := reg.Get("pbx-7"); return ok }) {
		t.Fatal("session not renamed to provider id")
	}

	s, _ := reg.Get("pbx-7")
	s.Hangup("test")
	if !waitFor(func() bool { return len(fin.Reports()) == 1 }) {
		t.Fatal("call not finalized")
	}
	if r := fin.Reports()[0]; r.SessionID != "pbx-7" || r.LeadID != "L2" {
		t.Fatalf("report = %+v", r)
	}
}
