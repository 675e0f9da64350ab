package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

// StatusEvent is one report lifecycle transition pushed to subscribers.
type StatusEvent struct {
	ReportID string              `json:"report_id"`
	Status   domain.ReportStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
}

// StatusHub fans report status transitions out to websocket subscribers.
// It implements service.StatusListener; the report processor feeds it and
// the events endpoint drains it.
type StatusHub struct {
	log *logrus.Logger

	mu   sync.RWMutex
	subs map[string]map[chan StatusEvent]struct{}
}

// NewStatusHub creates an empty hub.
func NewStatusHub(logger *logrus.Logger) *StatusHub {
	return &StatusHub{
		log:  logger,
		subs: make(map[string]map[chan StatusEvent]struct{}),
	}
}

// ReportStatusChanged delivers a transition to every subscriber of the
// report. Slow subscribers lose events rather than block the processor.
func (h *StatusHub) ReportStatusChanged(reportID string, status domain.ReportStatus, errMsg string) {
	event := StatusEvent{ReportID: reportID, Status: status, Error: errMsg}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[reportID] {
		select {
		case ch <- event:
		default:
			h.log.WithFields(logrus.Fields{
				"report_id": reportID,
				"status":    status,
			}).Debug("Dropped status event for slow subscriber")
		}
	}
}

// Subscribe registers interest in one report's transitions. The returned
// cancel function must be called to release the subscription.
func (h *StatusHub) Subscribe(reportID string) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 8)

	h.mu.Lock()
	if h.subs[reportID] == nil {
		h.subs[reportID] = make(map[chan StatusEvent]struct{})
	}
	h.subs[reportID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[reportID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, reportID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is open to browser clients from any origin, same as the
	// CORS policy on the REST routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleReportEvents streams a report's status transitions over a
// websocket. The current status is sent immediately on subscribe; the
// stream closes after a terminal transition.
func (s *Server) handleReportEvents(c *gin.Context) {
	id := c.Param("id")

	report, err := s.reports.GetReport(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	// Subscribe before reading current state so no transition is missed
	// between the snapshot and the stream.
	events, cancel := s.hub.Subscribe(id)
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).WithField("report_id", id).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	current := StatusEvent{ReportID: report.ID, Status: report.Status, Error: report.Error}
	if err := s.writeEvent(conn, current); err != nil {
		return
	}
	if report.Status.Terminal() {
		s.closeNormally(conn)
		return
	}

	// Reader goroutine detects client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-events:
			if err := s.writeEvent(conn, event); err != nil {
				return
			}
			if event.Status.Terminal() {
				s.closeNormally(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, event StatusEvent) error {
	conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if err := conn.WriteJSON(event); err != nil {
		s.logger.WithError(err).WithField("report_id", event.ReportID).Debug("Failed to write status event")
		return err
	}
	return nil
}

func (s *Server) closeNormally(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
