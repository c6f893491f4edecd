package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/pipeline"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "docpipe.runs"

// Event types, used as the last subject tokens.
const (
	TypeState          = "state"
	TypeStageStarted   = "stage.started"
	TypeStageCompleted = "stage.completed"
	TypeRunCompleted   = "run.completed"
)

const flushTimeout = 5 * time.Second

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// RunEvent is the JSON payload of every published message.
type RunEvent struct {
	RunID         string                 `json:"run_id"`
	Type          string                 `json:"type"`
	Time          time.Time              `json:"time"`
	Phase         pipeline.Phase         `json:"phase,omitempty"`
	From          pipeline.State         `json:"from,omitempty"`
	To            pipeline.State         `json:"to,omitempty"`
	Stage         *pipeline.StageInfo    `json:"stage,omitempty"`
	Result        *pipeline.StageResult  `json:"result,omitempty"`
	Status        pipeline.Status        `json:"status,omitempty"`
	PublishStatus pipeline.PublishStatus `json:"publish_status,omitempty"`
}

// NATSPublisher is a pipeline.Observer that publishes every lifecycle event
// to <prefix>.<run id>.<type>. Output lines are not published. Publish
// errors are logged and never affect the run.
type NATSPublisher struct {
	pipeline.NoopObserver
	conn   Conn
	prefix string
	runID  string
	now    func() time.Time
}

// Connect dials url and returns a publisher for runID.
func Connect(url, prefix, runID string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("docpipe "+runID),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS event publisher connected", logfields.URL(conn.ConnectedUrlRedacted()), slog.String("prefix", prefix))
	return NewNATSPublisher(conn, prefix, runID), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, prefix, runID string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), runID: runID, now: time.Now}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + p.runID + "." + eventType
}

func (p *NATSPublisher) OnStateChange(phase pipeline.Phase, from, to pipeline.State) {
	p.publish(RunEvent{Type: TypeState, Phase: phase, From: from, To: to})
}

func (p *NATSPublisher) OnStageStart(info pipeline.StageInfo) {
	p.publish(RunEvent{Type: TypeStageStarted, Phase: info.Phase, Stage: &info})
}

func (p *NATSPublisher) OnStageComplete(r pipeline.StageResult) {
	r.Output = ""
	p.publish(RunEvent{Type: TypeStageCompleted, Phase: r.Phase, Result: &r})
}

func (p *NATSPublisher) OnRunComplete(out *pipeline.Outcome) {
	p.publish(RunEvent{Type: TypeRunCompleted, Status: out.Status, PublishStatus: out.Publish.Status})
	if err := p.conn.FlushTimeout(flushTimeout); err != nil {
		slog.Warn("NATS flush failed", logfields.RunID(p.runID), logfields.Error(err))
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.FlushTimeout(flushTimeout)
	p.conn.Close()
}

func (p *NATSPublisher) publish(ev RunEvent) {
	ev.RunID = p.runID
	ev.Time = p.now()
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Encoding run event failed", logfields.RunID(p.runID), logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		slog.Warn("Publishing run event failed", logfields.RunID(p.runID), slog.String("subject", p.Subject(ev.Type)), logfields.Error(err))
	}
}
