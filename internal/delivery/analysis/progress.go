package analysis

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chess_review/internal/domain"
	"chess_review/internal/httpresponse"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// analysisJob tracks one running (or finished) analysis and the websocket
// subscribers watching it. All mutable state is guarded by mu; websocket
// writes happen under mu as well, since gorilla allows one writer at a time.
type analysisJob struct {
	id     string
	total  int
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	plies  []domain.AnalyzedPly
	report *domain.AccuracyReport
	err    error
	done   bool
	subs   map[*websocket.Conn]struct{}
}

// ProgressEvent is one message on the progress stream: a "ply" per finished
// half-move, then a single "done" carrying the report.
type ProgressEvent struct {
	Type   string                 `json:"type"`
	Ply    *domain.AnalyzedPly    `json:"ply,omitempty"`
	Report *domain.AccuracyReport `json:"report,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func newJob(id string, total int) *analysisJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &analysisJob{
		id:     id,
		total:  total,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[*websocket.Conn]struct{}),
	}
}

// publish records a finished ply and fans it out to the subscribers.
// Called from the analysis goroutine only.
func (j *analysisJob) publish(p domain.AnalyzedPly) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.plies = append(j.plies, p)
	j.sendLocked(ProgressEvent{Type: "ply", Ply: &p})
}

func (j *analysisJob) finish(report *domain.AccuracyReport, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.report = report
	j.err = err
	j.done = true

	event := ProgressEvent{Type: "done", Report: report}
	if err != nil {
		event.Error = err.Error()
	}
	j.sendLocked(event)

	for conn := range j.subs {
		conn.Close()
	}
	j.subs = make(map[*websocket.Conn]struct{})
	j.cancel()
}

func (j *analysisJob) sendLocked(event ProgressEvent) {
	for conn := range j.subs {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(j.subs, conn)
		}
	}
}

func (j *analysisJob) snapshot() (report *domain.AccuracyReport, running bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report, !j.done
}

func (j *analysisJob) result() (*domain.AccuracyReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report, j.err
}

func (j *analysisJob) pliesSoFar() []domain.AnalyzedPly {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.AnalyzedPly, len(j.plies))
	copy(out, j.plies)
	return out
}

func (j *analysisJob) analyzed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, p := range j.plies {
		if p.Status == domain.PlyAnalyzed {
			n++
		}
	}
	return n
}

// subscribe replays the plies produced so far on the new connection, then
// registers it for live events. If the job already finished, the final
// event is sent and the connection is not kept.
func (j *analysisJob) subscribe(conn *websocket.Conn) (kept bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.plies {
		if err := conn.WriteJSON(ProgressEvent{Type: "ply", Ply: &j.plies[i]}); err != nil {
			return false
		}
	}

	if j.done {
		event := ProgressEvent{Type: "done", Report: j.report}
		if j.err != nil {
			event.Error = j.err.Error()
		}
		conn.WriteJSON(event)
		return false
	}

	j.subs[conn] = struct{}{}
	return true
}

func (j *analysisJob) unsubscribe(conn *websocket.Conn) {
	j.mu.Lock()
	delete(j.subs, conn)
	j.mu.Unlock()
}

// HandleProgress streams analysis progress over a websocket. The client
// gets every ply analyzed so far first, so connecting late loses nothing.
func (h *AnalysisHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "missing id")
		return
	}

	job, ok := lookupJob(id)
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound, "unknown analysis id: "+id)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade error:", err)
		return
	}

	if !job.subscribe(conn) {
		conn.Close()
		return
	}

	defer func() {
		job.unsubscribe(conn)
		conn.Close()
	}()

	// Drain the connection; the read fails when the client leaves.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
