package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/dialog"
	"github.com/ashureev/portfolio-assistant/internal/speech"
)

const (
	outboundBuffer = 256
	writeTimeout   = 10 * time.Second
)

// connection is the server side of one assistant WebSocket.
type connection struct {
	ws     *websocket.Conn
	out    chan serverFrame
	dialog *dialog.Controller
	speech *speech.Controller
	relay  *speech.RelayRecognizer
	logger *slog.Logger
}

func newConnection(ctx context.Context, cfg HandlerConfig, ws *websocket.Conn, browserSpeech bool, logger *slog.Logger) *connection {
	c := &connection{
		ws:     ws,
		out:    make(chan serverFrame, outboundBuffer),
		logger: logger,
	}

	var rec speech.Recognizer
	rec, c.relay = cfg.Speech(browserSpeech, c.onRelayCommand)

	c.speech = speech.NewController(ctx, rec,
		speech.WithLanguage(cfg.Lang),
		speech.WithLogger(logger),
		speech.OnFinal(func(text string) { c.dialog.FinalTranscript(text) }),
		speech.OnError(c.onCaptureError),
		speech.OnStateChange(func(active bool) { c.dialog.CaptureChanged(active) }),
		speech.OnInterim(func(string) { c.sendStatus() }),
	)

	newSession := func() *conversation.Session {
		return conversation.NewSession(cfg.Engine, cfg.Conversation,
			conversation.WithCapture(c.speech),
			conversation.WithObserver(c.onSessionEvent),
			conversation.WithLogger(logger),
		)
	}
	c.dialog = dialog.New(newSession,
		dialog.WithCapture(c.speech),
		dialog.WithVisibilityHook(func(bool, *conversation.Session) { c.sendSnapshot() }),
		dialog.WithLogger(logger),
	)
	return c
}

// send queues a frame without blocking. Session events are delivered under
// the session lock, so a stalled client must never hold it.
func (c *connection) send(f serverFrame) {
	select {
	case c.out <- f:
	default:
		c.logger.Warn("[ASSISTANT] Outbound buffer full, dropping frame", "type", f.Type)
	}
}

func (c *connection) sendSnapshot() {
	supported := c.speech.Supported()
	f := serverFrame{
		Type:            frameSnapshot,
		SpeechSupported: &supported,
	}
	if s := c.dialog.Session(); s != nil {
		st := s.Snapshot()
		f.Turns = st.Turns
		f.Status = newStatus(true, st.Status, c.speech.Interim())
		f.QuickActions = s.QuickActions()
	} else {
		f.Status = newStatus(false, conversation.Status{}, "")
	}
	c.send(f)
}

func (c *connection) sendStatus() {
	s := c.dialog.Session()
	if s == nil {
		return
	}
	c.send(serverFrame{Type: frameStatus, Status: newStatus(true, s.Status(), c.speech.Interim())})
}

// onSessionEvent runs under the session lock and must not call back into
// the session.
func (c *connection) onSessionEvent(ev conversation.Event) {
	switch ev.Kind {
	case conversation.EventTurn:
		c.send(serverFrame{Type: frameTurn, Turn: ev.Turn})
	case conversation.EventStatus:
		c.send(serverFrame{Type: frameStatus, Status: newStatus(true, ev.Status, c.speech.Interim())})
	case conversation.EventCleared:
		c.send(serverFrame{
			Type:   frameSnapshot,
			Turns:  ev.Turns,
			Status: newStatus(true, ev.Status, ""),
		})
	}
}

func (c *connection) onCaptureError(err *speech.CaptureError) {
	c.send(serverFrame{Type: frameCaptureError, Code: string(err.Code), Error: err.Error()})
}

func (c *connection) onRelayCommand(cmd speech.RelayCommand) {
	c.send(serverFrame{Type: frameSpeechCommand, Command: &cmd})
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		_, message, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				c.logger.Debug("[ASSISTANT] WebSocket closed by client")
			} else {
				c.logger.Warn("[ASSISTANT] WebSocket read error", "error", err)
			}
			return
		}

		var f clientFrame
		if err := json.Unmarshal(message, &f); err != nil {
			c.send(serverFrame{Type: frameError, Error: "invalid_frame"})
			continue
		}
		c.dispatch(ctx, f)
	}
}

//nolint:gocyclo // One case per client frame type.
func (c *connection) dispatch(ctx context.Context, f clientFrame) {
	switch f.Type {
	case frameOpen:
		c.dialog.Open()
	case frameClose:
		c.dialog.Close()
	case frameToggle:
		c.dialog.Toggle()
	case framePointer:
		c.dialog.PointerDown(f.X, f.Y)
	case frameKey:
		c.dialog.KeyDown(f.Key)
	case frameBounds:
		if f.Bounds != nil {
			c.dialog.SetBounds(*f.Bounds)
		}
	case frameSubmit:
		if !c.dialog.IsOpen() {
			c.send(serverFrame{Type: frameError, Error: "dialog_closed"})
			return
		}
		c.dialog.Submit(f.Text)
	case frameClear:
		c.dialog.Clear()
	case frameListenStart:
		c.dialog.StartListening(ctx)
	case frameListenStop:
		c.dialog.StopListening()
	case frameSpeech:
		if c.relay != nil {
			c.relay.Push(f.Transcript, f.Final)
		}
	case frameSpeechError:
		if c.relay != nil {
			c.relay.Fail(f.Code)
		}
	case frameSpeechEnd:
		if c.relay != nil {
			c.relay.End()
		}
	case framePing:
		c.send(serverFrame{Type: framePong})
	default:
		c.send(serverFrame{Type: frameError, Error: "unknown_type"})
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.out:
			if err := c.writeJSON(ctx, f); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("[ASSISTANT] WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}

func (c *connection) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, data)
}

// shutdown closes the dialog and waits for capture to settle. The dialog
// close stops capture and quiesces the session before the controller is
// torn down.
func (c *connection) shutdown() {
	c.dialog.Close()
	c.speech.Close()
}
