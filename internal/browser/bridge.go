package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/overtabbed/internal/applog"
	"github.com/lotas/overtabbed/internal/types"
	"nhooyr.io/websocket"
)

// callTimeout bounds how long a single command waits for the extension to
// answer before the engine moves on.
const callTimeout = 10 * time.Second

// ErrNotConnected is returned by commands while no extension is connected.
var ErrNotConnected = errors.New("browser extension not connected")

// incomingMsg is a message from the extension to the daemon: tab-activity
// events, an explicit run request, or a response to an earlier command.
type incomingMsg struct {
	Type    string          `json:"type"`
	Tabs    json.RawMessage `json:"tabs,omitempty"`
	Groups  json.RawMessage `json:"groups,omitempty"`
	TabID   int             `json:"tabId,omitempty"`
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	GroupID int             `json:"groupId,omitempty"`
}

// outgoingMsg is a command from the daemon to the extension, correlated with
// its response by ID.
type outgoingMsg struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	TabID    int    `json:"tabId,omitempty"`
	TabIDs   []int  `json:"tabIds,omitempty"`
	GroupID  int    `json:"groupId,omitempty"`
	WindowID int    `json:"windowId,omitempty"`
	Name     string `json:"name,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Bridge is a WebSocket server the companion extension connects to. It
// implements Client by sending commands over the socket and waiting for the
// correlated response. At most one extension is connected at a time; a new
// connection replaces the old one.
type Bridge struct {
	port  int
	onRun func()

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan incomingMsg

	events chan Event
	cmdSeq atomic.Int64
}

// NewBridge creates a Bridge listening on the given port once ListenAndServe
// is called. Port 0 means the caller manages the listener (tests).
func NewBridge(port int) *Bridge {
	return &Bridge{
		port:    port,
		pending: make(map[string]chan incomingMsg),
		events:  make(chan Event, 64),
	}
}

// OnRun registers the callback invoked for manual evaluation requests
// (the extension's runRules message or an HTTP POST /run).
func (b *Bridge) OnRun(fn func()) {
	b.onRun = fn
}

// Events returns the stream of tab-activity notifications.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Connected reports whether an extension is currently connected.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Handler returns an http.Handler that accepts WebSocket upgrades from the
// extension and runs the read loop for the connection's lifetime.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB — tab snapshots can be large

		ctx := r.Context()
		b.mu.Lock()
		if b.conn != nil {
			applog.Info("ws.replaced")
			b.conn.CloseNow()
		}
		b.conn = conn
		b.connCtx = ctx
		b.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
				b.connCtx = nil
			}
			b.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg incomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			b.dispatch(msg)
		}
	})
}

func (b *Bridge) dispatch(msg incomingMsg) {
	switch msg.Type {
	case "tabActivated":
		b.emit(Event{Kind: EventActivated, TabID: msg.TabID})
	case "tabRemoved":
		b.emit(Event{Kind: EventRemoved, TabID: msg.TabID})
	case "runRules":
		applog.Info("ws.runRules")
		if b.onRun != nil {
			go b.onRun()
		}
	case "snapshot":
		// Unsolicited population pushes are informational only; the engine
		// always pulls a fresh listTabs at the start of a cycle.
		applog.Info("ws.snapshot")
	default:
		if msg.ID != "" {
			b.deliver(msg)
			return
		}
		applog.Info("ws.recv.unknown", "type", msg.Type)
	}
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}

func (b *Bridge) deliver(msg incomingMsg) {
	b.mu.Lock()
	ch, ok := b.pending[msg.ID]
	if ok {
		delete(b.pending, msg.ID)
	}
	b.mu.Unlock()
	if !ok {
		// Late or duplicate response; the caller already gave up.
		return
	}
	ch <- msg
}

// call sends a command and waits for its correlated response.
func (b *Bridge) call(ctx context.Context, msg outgoingMsg) (incomingMsg, error) {
	msg.ID = fmt.Sprintf("cmd-%d", b.cmdSeq.Add(1))

	ch := make(chan incomingMsg, 1)

	b.mu.Lock()
	conn := b.conn
	connCtx := b.connCtx
	if conn != nil {
		b.pending[msg.ID] = ch
	}
	b.mu.Unlock()

	if conn == nil {
		return incomingMsg{}, ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.abandon(msg.ID)
		return incomingMsg{}, err
	}
	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	if err := conn.Write(connCtx, websocket.MessageText, data); err != nil {
		b.abandon(msg.ID)
		return incomingMsg{}, fmt.Errorf("send %s: %w", msg.Action, err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.OK != nil && !*resp.OK {
			return resp, fmt.Errorf("%s: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		b.abandon(msg.ID)
		return incomingMsg{}, ctx.Err()
	case <-timer.C:
		b.abandon(msg.ID)
		return incomingMsg{}, fmt.Errorf("%s: timed out waiting for extension", msg.Action)
	}
}

func (b *Bridge) abandon(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// ListTabs asks the extension for the full tab population.
func (b *Bridge) ListTabs(ctx context.Context) ([]*types.Tab, error) {
	resp, err := b.call(ctx, outgoingMsg{Action: "listTabs"})
	if err != nil {
		return nil, err
	}
	return parseTabs(resp.Tabs)
}

// ListGroups asks the extension for the tab groups in one window.
func (b *Bridge) ListGroups(ctx context.Context, windowID int) ([]*types.TabGroup, error) {
	resp, err := b.call(ctx, outgoingMsg{Action: "listGroups", WindowID: windowID})
	if err != nil {
		return nil, err
	}
	return parseGroups(resp.Groups)
}

func (b *Bridge) CloseTab(ctx context.Context, tabID int) error {
	_, err := b.call(ctx, outgoingMsg{Action: "close", TabIDs: []int{tabID}})
	return err
}

func (b *Bridge) SetPinned(ctx context.Context, tabID int, pinned bool) error {
	action := "pin"
	if !pinned {
		action = "unpin"
	}
	_, err := b.call(ctx, outgoingMsg{Action: action, TabID: tabID})
	return err
}

func (b *Bridge) SetMuted(ctx context.Context, tabID int, muted bool) error {
	action := "mute"
	if !muted {
		action = "unmute"
	}
	_, err := b.call(ctx, outgoingMsg{Action: action, TabID: tabID})
	return err
}

func (b *Bridge) SetHighlighted(ctx context.Context, tabID int, highlighted bool) error {
	action := "highlight"
	if !highlighted {
		action = "unhighlight"
	}
	_, err := b.call(ctx, outgoingMsg{Action: action, TabID: tabID})
	return err
}

func (b *Bridge) DiscardTab(ctx context.Context, tabID int) error {
	_, err := b.call(ctx, outgoingMsg{Action: "discard", TabID: tabID})
	return err
}

func (b *Bridge) GroupTabs(ctx context.Context, groupID int, tabIDs []int) error {
	_, err := b.call(ctx, outgoingMsg{Action: "group", GroupID: groupID, TabIDs: tabIDs})
	return err
}

func (b *Bridge) CreateGroup(ctx context.Context, windowID int, tabIDs []int) (int, error) {
	resp, err := b.call(ctx, outgoingMsg{Action: "createGroup", WindowID: windowID, TabIDs: tabIDs})
	if err != nil {
		return 0, err
	}
	return resp.GroupID, nil
}

func (b *Bridge) UpdateGroup(ctx context.Context, groupID int, title, color string) error {
	_, err := b.call(ctx, outgoingMsg{Action: "updateGroup", GroupID: groupID, Name: title, Color: color})
	return err
}

// ListenAndServe starts the bridge on 127.0.0.1:<port>. Besides the WebSocket
// endpoint it serves POST /run, which triggers one manual evaluation cycle.
func (b *Bridge) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", b.Handler())
	mux.HandleFunc("/run", b.runHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", b.port)
	applog.Info("bridge.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}

func (b *Bridge) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	applog.Info("bridge.run")
	if b.onRun != nil {
		b.onRun()
	}
	w.WriteHeader(http.StatusAccepted)
}
