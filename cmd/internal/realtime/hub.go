package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrblit/cmd/internal/archive"
	"scrblit/cmd/internal/canvas"
	"scrblit/cmd/internal/metrics"
	v1 "scrblit/shared/contracts/scribble/v1"
)

const defaultInboxSize = 1024

// ErrHubClosed is returned by Hub calls after Run has returned.
var ErrHubClosed = errors.New("realtime: hub closed")

// Archiver stores a finalized snapshot. archive.Handoff implements it.
type Archiver interface {
	Archive(ctx context.Context, snap canvas.Snapshot) error
}

// HubConfig configures NewHub.
type HubConfig struct {
	Session     *canvas.Session
	Coordinator *canvas.Coordinator
	Archiver    Archiver

	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	InboxSize int
}

// Status is a point-in-time view of the hub.
type Status struct {
	Connections int     `json:"connections"`
	Lines       int     `json:"lines"`
	Coverage    float64 `json:"coverage"`
	Threshold   float64 `json:"threshold"`
	State       string  `json:"state"`
	Cycle       uint64  `json:"cycle"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Hub serializes every connection event through one goroutine (Run). The canvas session
// and coordinator are only touched there, so a threshold crossing is observed and acted
// on exactly once no matter how many strokes race in.
type Hub struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	session  *canvas.Session
	coord    *canvas.Coordinator
	archiver Archiver

	inbox   chan event
	stopped chan struct{}
	runOnce sync.Once

	// loop-owned
	peers      *peers
	archiveCtx context.Context
	archives   sync.WaitGroup
}

type event interface{ apply(h *Hub) }

type registerEvent struct{ client *Client }

type submitEvent struct {
	client *Client
	msg    v1.Message
}

type unregisterEvent struct{ client *Client }

type statusEvent struct{ reply chan Status }

type archiveDoneEvent struct {
	cycle uint64
	err   error
	took  time.Duration
}

// NewHub validates cfg. Run must be called for the hub to make progress.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Session == nil {
		return nil, errors.New("realtime: nil session")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("realtime: nil coordinator")
	}
	if cfg.Archiver == nil {
		return nil, errors.New("realtime: nil archiver")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Hub{
		log:      log,
		metrics:  cfg.Metrics,
		session:  cfg.Session,
		coord:    cfg.Coordinator,
		archiver: cfg.Archiver,
		inbox:    make(chan event, size),
		stopped:  make(chan struct{}),
		peers:    newPeers(log, cfg.Metrics),
	}, nil
}

// Run processes events until ctx is done, then closes every client and waits for
// in-flight archives. It returns ctx.Err().
func (h *Hub) Run(ctx context.Context) error {
	ran := false
	h.runOnce.Do(func() { ran = true })
	if !ran {
		return errors.New("realtime: hub already running")
	}

	// Archives outlive shutdown so a snapshot that already fired still gets stored.
	h.archiveCtx = context.WithoutCancel(ctx)

	w, ht := h.session.Size()
	h.log.Info("hub.start",
		"width", w,
		"height", ht,
		"threshold", h.coord.Threshold(),
		"on_archive_failure", h.coord.Policy().String(),
	)

	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			h.peers.closeAll()
			h.archives.Wait()
			h.log.Info("hub.stop", "lines", h.session.Len(), "cycle", h.session.Cycle())
			return ctx.Err()
		case ev := <-h.inbox:
			ev.apply(h)
		}
	}
}

func (h *Hub) post(ctx context.Context, ev event) error {
	select {
	case <-h.stopped:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- ev:
		return nil
	case <-h.stopped:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds client to the live set. INITIAL_STATE is queued to it in the same step,
// so it precedes every later broadcast.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	if client == nil || client.ID == "" {
		return errors.New("realtime: invalid client")
	}
	return h.post(ctx, registerEvent{client: client})
}

// Submit hands one decoded inbound message to the hub. It blocks while the inbox is full.
func (h *Hub) Submit(ctx context.Context, client *Client, msg v1.Message) error {
	if client == nil || msg == nil {
		return errors.New("realtime: invalid submit")
	}
	return h.post(ctx, submitEvent{client: client, msg: msg})
}

// Unregister removes client from the live set. It has no effect on the canvas.
func (h *Hub) Unregister(ctx context.Context, client *Client) error {
	if client == nil {
		return nil
	}
	return h.post(ctx, unregisterEvent{client: client})
}

// Status reads a consistent view from the hub loop.
func (h *Hub) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := h.post(ctx, statusEvent{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-h.stopped:
		return Status{}, ErrHubClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.stopped }

// ---- loop handlers ----

func (e registerEvent) apply(h *Hub) {
	c := e.client
	if c.closed() {
		return
	}
	h.peers.join(c)
	lines := h.session.Lines()
	if !h.peers.deliver(c, v1.InitialState{Lines: toWire(lines)}) {
		return
	}
	h.log.Debug("hub.initial_state.sent", "client_id", c.ID, "lines", len(lines))
}

func (e unregisterEvent) apply(h *Hub) {
	h.peers.leave(e.client)
}

func (e statusEvent) apply(h *Hub) {
	w, ht := h.session.Size()
	e.reply <- Status{
		Connections: h.peers.len(),
		Lines:       h.session.Len(),
		Coverage:    h.session.Coverage(),
		Threshold:   h.coord.Threshold(),
		State:       h.session.State().String(),
		Cycle:       h.session.Cycle(),
		Width:       w,
		Height:      ht,
	}
}

func (e submitEvent) apply(h *Hub) {
	if !h.peers.has(e.client) {
		h.log.Debug("hub.submit.unregistered", "client_id", e.client.ID, "kind", e.msg.Kind().String())
		return
	}

	switch m := e.msg.(type) {
	case v1.Draw:
		h.onDraw(e.client, m)
	case v1.Heartbeat:
	default:
		h.metrics.MessageMalformed()
		h.log.Info("hub.message.unexpected", "client_id", e.client.ID, "kind", m.Kind().String())
	}
}

func (h *Hub) onDraw(sender *Client, m v1.Draw) {
	stroke := fromWire(m.Line)
	coverage, err := h.session.AddStroke(stroke)
	if err != nil {
		h.metrics.MessageMalformed()
		h.log.Info("hub.stroke.invalid", "client_id", sender.ID, "err", err)
		return
	}
	h.metrics.StrokeAccepted(coverage)

	h.peers.broadcast(v1.Draw{Line: toWireLine(stroke)}, sender)
	h.evaluate(sender.ID)
}

// evaluate fires the snapshot signal and starts archival if coverage crossed the
// threshold. cause names what led here: a client id, or "carryover" after a reset.
func (h *Hub) evaluate(cause string) {
	snap, fired := h.coord.Evaluate(h.session)
	if !fired {
		return
	}

	h.metrics.SnapshotTriggered()
	h.log.Info("hub.snapshot.trigger",
		"cycle", snap.Cycle,
		"coverage", snap.Coverage,
		"lines", len(snap.Lines),
		"cause", cause,
	)
	h.peers.broadcast(v1.TriggerSave{}, nil)
	h.startArchive(snap)
}

func (h *Hub) startArchive(snap canvas.Snapshot) {
	h.archives.Add(1)
	go func() {
		defer h.archives.Done()

		start := time.Now()
		err := h.archive(snap)
		done := archiveDoneEvent{cycle: snap.Cycle, err: err, took: time.Since(start)}

		select {
		case h.inbox <- done:
		case <-h.stopped:
			h.log.Info("hub.archive.abandoned", "cycle", snap.Cycle, "err", err)
		}
	}()
}

func (h *Hub) archive(snap canvas.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("realtime: archiver panic: %v", r)
		}
	}()
	return h.archiver.Archive(h.archiveCtx, snap)
}

func (e archiveDoneEvent) apply(h *Hub) {
	result := metrics.ResultOK
	switch {
	case errors.Is(e.err, archive.ErrMissingCredential):
		result = metrics.ResultRefused
	case e.err != nil:
		result = metrics.ResultError
	}
	h.metrics.ArchiveDone(result, e.took)

	if e.err != nil {
		h.log.Error("hub.archive.fail", "cycle", e.cycle, "took_ms", e.took.Milliseconds(), "err", e.err)
	}

	carried := h.session.Pending()
	outcome, err := h.coord.Complete(h.session, e.err)
	if err != nil {
		h.log.Error("hub.snapshot.complete.fail", "cycle", e.cycle, "err", err)
		return
	}
	h.metrics.SetCoverage(h.session.Coverage())
	h.log.Info("hub.snapshot.complete",
		"cycle", e.cycle,
		"outcome", outcome.String(),
		"archived", e.err == nil,
		"lines", h.session.Len(),
		"carried", carried,
	)

	if outcome == canvas.OutcomeReset {
		h.evaluate("carryover")
	}
}

// ---- wire conversion ----

func fromWire(l v1.Line) canvas.Stroke {
	return canvas.Stroke{X1: l.X1, Y1: l.Y1, X2: l.X2, Y2: l.Y2, Color: l.Color, Width: l.Width}
}

func toWireLine(s canvas.Stroke) v1.Line {
	return v1.Line{X1: s.X1, Y1: s.Y1, X2: s.X2, Y2: s.Y2, Color: s.Color, Width: s.Width}
}

func toWire(strokes []canvas.Stroke) []v1.Line {
	out := make([]v1.Line, len(strokes))
	for i, s := range strokes {
		out[i] = toWireLine(s)
	}
	return out
}
