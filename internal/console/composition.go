package console

import (
	"errors"
	"sync"

	"github.com/pershin-daniil/clinicconsole/internal/dispatch"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const sentNotice = "Notificação enviada com sucesso!"

var (
	ErrNotComposing = errors.New("no message is being composed")
	ErrSendInFlight = errors.New("a send is already in progress")
)

// Composition is the message-composition state of one browser session.
type Composition struct {
	Open        bool            `json:"open"`
	BookingID   int             `json:"id_agendamento,omitempty"`
	PatientName string          `json:"nome_paciente,omitempty"`
	ChatID      string          `json:"telegram_id,omitempty"`
	Text        string          `json:"mensagem"`
	Sending     bool            `json:"sending"`
	Error       string          `json:"error,omitempty"`
	Notice      string          `json:"notice,omitempty"`
	target      dispatch.Target
	generation  uint64
}

// Compositions holds one Composition per browser session. A result that
// arrives after its composition was closed or reopened is discarded.
type Compositions struct {
	mu    sync.Mutex
	state map[string]Composition
	gen   uint64
}

func NewCompositions() *Compositions {
	return &Compositions{state: make(map[string]Composition)}
}

func (c *Compositions) Get(sid string) Composition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state[sid]
}

func (c *Compositions) Open(sid string, b models.Booking) Composition {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	target := dispatch.TargetFromBooking(b)
	comp := Composition{
		Open:        true,
		BookingID:   b.ID,
		PatientName: b.PatientName,
		ChatID:      target.ChatID(),
		target:      target,
		generation:  c.gen,
	}
	c.state[sid] = comp
	return comp
}

func (c *Compositions) Cancel(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.state, sid)
}

// Begin marks the composition as sending text. A second Begin before
// Finish is refused.
func (c *Compositions) Begin(sid, text string) (Composition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.state[sid]
	if !ok || !comp.Open {
		return Composition{}, ErrNotComposing
	}
	if comp.Sending {
		return comp, ErrSendInFlight
	}
	comp.Text = text
	comp.Sending = true
	comp.Error = ""
	comp.Notice = ""
	c.state[sid] = comp
	return comp, nil
}

// Finish applies the outcome of the send started by began. On success the
// composition closes and its text is dropped; on failure it stays open
// with the text untouched and reason shown.
func (c *Compositions) Finish(sid string, began Composition, reason string, ok bool) Composition {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, exists := c.state[sid]
	if !exists || comp.generation != began.generation {
		return comp
	}
	if ok {
		comp = Composition{Notice: sentNotice, generation: comp.generation}
	} else {
		comp.Sending = false
		comp.Error = reason
	}
	c.state[sid] = comp
	return comp
}

// Sessions lists the session ids that hold a composition.
func (c *Compositions) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sids := make([]string, 0, len(c.state))
	for sid := range c.state {
		sids = append(sids, sid)
	}
	return sids
}

func (c *Compositions) Drop(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, sid)
}
