package assistant

import (
	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/dialog"
	"github.com/ashureev/portfolio-assistant/internal/domain"
	"github.com/ashureev/portfolio-assistant/internal/speech"
)

// Client frame types.
const (
	frameOpen        = "open"
	frameClose       = "close"
	frameToggle      = "toggle"
	framePointer     = "pointer"
	frameKey         = "key"
	frameBounds      = "bounds"
	frameSubmit      = "submit"
	frameClear       = "clear"
	frameListenStart = "listen_start"
	frameListenStop  = "listen_stop"
	frameSpeech      = "speech"
	frameSpeechError = "speech_error"
	frameSpeechEnd   = "speech_end"
	framePing        = "ping"
)

// Server frame types.
const (
	frameSnapshot      = "snapshot"
	frameTurn          = "turn"
	frameStatus        = "status"
	frameCaptureError  = "capture_error"
	frameSpeechCommand = "speech_command"
	framePong          = "pong"
	frameError         = "error"
)

// clientFrame is a message from the browser. Only the fields relevant to
// Type are set.
type clientFrame struct {
	Type       string       `json:"type"`
	Text       string       `json:"text,omitempty"`
	X          float64      `json:"x,omitempty"`
	Y          float64      `json:"y,omitempty"`
	Key        string       `json:"key,omitempty"`
	Bounds     *dialog.Rect `json:"bounds,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Final      bool         `json:"final,omitempty"`
	Code       string       `json:"code,omitempty"`
}

// statusPayload is the indicator state shown next to the conversation.
type statusPayload struct {
	Open        bool   `json:"open"`
	Composing   bool   `json:"composing"`
	Capturing   bool   `json:"capturing"`
	Celebrating bool   `json:"celebrating"`
	Interim     string `json:"interim,omitempty"`
}

// serverFrame is a message to the browser.
type serverFrame struct {
	Type            string               `json:"type"`
	Turn            *domain.Turn         `json:"turn,omitempty"`
	Turns           []domain.Turn        `json:"turns,omitempty"`
	Status          *statusPayload       `json:"status,omitempty"`
	SpeechSupported *bool                `json:"speech_supported,omitempty"`
	QuickActions    []string             `json:"quick_actions,omitempty"`
	Command         *speech.RelayCommand `json:"command,omitempty"`
	Code            string               `json:"code,omitempty"`
	Error           string               `json:"error,omitempty"`
}

func newStatus(open bool, st conversation.Status, interim string) *statusPayload {
	return &statusPayload{
		Open:        open,
		Composing:   st.Composing,
		Capturing:   st.Capturing,
		Celebrating: st.Celebrating,
		Interim:     interim,
	}
}
