package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/clipline/internal/stitch"
)

// EventType identifies what changed.
type EventType string

// Event types published by the orchestrator and the stitcher.
const (
	EventSnapshot    EventType = "snapshot"
	EventRegistered  EventType = "registered"
	EventClipUpdated EventType = "clip_updated"
	EventRemoved     EventType = "removed"
	EventStitch      EventType = "stitch"
)

// Event is a change notification for one production.
type Event struct {
	Type       EventType      `json:"type"`
	CampaignID string         `json:"campaignId"`
	Clips      []ClipView     `json:"clips,omitempty"`
	LastUpdate time.Time      `json:"lastUpdate"`
	Stitch     *stitch.Status `json:"stitch,omitempty"`
}

// Broker fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	next   int
	buffer int
	logger *slog.Logger
}

// NewBroker creates a Broker with the given per-subscriber buffer size.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel of events for campaignID, or for every
// production when campaignID is empty. The cancel func closes the channel.
func (b *Broker) Subscribe(campaignID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	if b.subs[campaignID] == nil {
		b.subs[campaignID] = make(map[int]chan Event)
	}
	b.subs[campaignID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[campaignID], id)
			if len(b.subs[campaignID]) == 0 {
				delete(b.subs, campaignID)
			}
			close(ch)
		})
	}
}

// subscribers returns the number of subscribers for campaignID.
func (b *Broker) subscribers(campaignID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[campaignID])
}

// Publish delivers ev to the production's subscribers and to global ones.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.send(b.subs[ev.CampaignID], ev)
	if ev.CampaignID != "" {
		b.send(b.subs[""], ev)
	}
}

// PublishStitch publishes a stitcher status change.
func (b *Broker) PublishStitch(campaignID string, st stitch.Status) {
	b.Publish(Event{
		Type:       EventStitch,
		CampaignID: campaignID,
		LastUpdate: st.UpdatedAt,
		Stitch:     &st,
	})
}

func (b *Broker) send(subs map[int]chan Event, ev Event) {
	for id, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				slog.String("campaign_id", ev.CampaignID),
				slog.Int("subscriber", id),
				slog.String("type", string(ev.Type)),
			)
		}
	}
}
