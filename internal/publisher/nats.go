package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"subway-congestion-map/internal/mapview"
)

type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          *nats.Conn
	conn        conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("subway-congestion-map"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{conn: c, prefix: subjectPrefix(prefix), logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// RouteMessage summarises a walking route handed to a client.
type RouteMessage struct {
	RequestID string    `json:"requestId"`
	API       string    `json:"api"`
	Station   string    `json:"station,omitempty"`
	DistanceM float64   `json:"distanceM"`
	DurationS float64   `json:"durationS"`
	Points    int       `json:"points"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage carries the conversational reply for a route request.
type ChatMessage struct {
	RequestID string    `json:"requestId"`
	Station   string    `json:"station,omitempty"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FocusMessage reports how a fly-to-and-open request ended.
type FocusMessage struct {
	RequestID string    `json:"requestId"`
	Station   string    `json:"station"`
	Outcome   string    `json:"outcome"`
	Attempts  int       `json:"attempts"`
	ElapsedMs int64     `json:"elapsedMs"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *NATSPublisher) PublishRoute(msg RouteMessage) error {
	return p.publish(p.subject("route", msg.RequestID), msg)
}

func (p *NATSPublisher) PublishChat(msg ChatMessage) error {
	return p.publish(p.subject("chat", msg.RequestID), msg)
}

func (p *NATSPublisher) PublishFocus(msg FocusMessage) error {
	return p.publish(p.subject("focus", msg.Station), msg)
}

// FocusObserver returns a map observer that publishes every finished focus
// request. Visibility changes are not published.
func (p *NATSPublisher) FocusObserver() mapview.Observer { return focusObserver{p: p} }

type focusObserver struct{ p *NATSPublisher }

func (focusObserver) VisibilityChanged(mapview.Visibility) {}

func (o focusObserver) FocusFinished(r mapview.FocusReport) {
	err := o.p.PublishFocus(FocusMessage{
		RequestID: r.RequestID,
		Station:   string(r.Key),
		Outcome:   r.Outcome(),
		Attempts:  r.Attempts,
		ElapsedMs: r.Elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("publish focus %s: %v", r.RequestID, err)
	}
}

func (p *NATSPublisher) subject(kind, id string) string {
	return p.prefix + "." + kind + "." + subjectToken(id)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// subjectPrefix keeps dots between tokens so a prefix may span several levels.
func subjectPrefix(s string) string {
	var tokens []string
	for _, t := range strings.Split(s, ".") {
		if strings.TrimSpace(t) != "" {
			tokens = append(tokens, subjectToken(t))
		}
	}
	if len(tokens) == 0 {
		return "congestion"
	}
	return strings.Join(tokens, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
