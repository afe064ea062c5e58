package cycle

import (
	"slices"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// Sighting is one observation of a tag by a reader.
type Sighting struct {
	Reader  string
	Antenna int
	RSSI    int
	Time    time.Time
}

// TagRecord is the merged state of one logical tag within a boundary.
type TagRecord struct {
	Key       ir.PrimaryKey
	Tag       ir.Tag
	Readers   []string
	History   []Sighting
	FirstSeen time.Time
	LastSeen  time.Time
}

// Count returns the number of sightings merged into the record.
func (r *TagRecord) Count() int { return len(r.History) }

// EventRecord is the merged state of one port event within a boundary.
type EventRecord struct {
	Event     *ir.PortEvent
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Data is the collection of one boundary. Tags are keyed by primary key,
// events by event URI; iteration follows first-seen order.
//
// A Data is only mutated while it is a cycle's present collection. Once
// rotated into a snapshot it is read-only.
type Data struct {
	tags       map[ir.PrimaryKey]*TagRecord
	tagOrder   []ir.PrimaryKey
	events     map[string]*EventRecord
	eventOrder []string
}

// NewData returns an empty collection.
func NewData() *Data {
	return &Data{
		tags:   make(map[ir.PrimaryKey]*TagRecord),
		events: make(map[string]*EventRecord),
	}
}

// Len returns the number of distinct tags plus events.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.tagOrder) + len(d.eventOrder)
}

// Tag returns the record for key.
func (d *Data) Tag(key ir.PrimaryKey) (*TagRecord, bool) {
	if d == nil {
		return nil, false
	}
	r, ok := d.tags[key]
	return r, ok
}

// Tags returns the tag records in first-seen order.
func (d *Data) Tags() []*TagRecord {
	if d == nil {
		return nil
	}
	out := make([]*TagRecord, 0, len(d.tagOrder))
	for _, k := range d.tagOrder {
		out = append(out, d.tags[k])
	}
	return out
}

// HasEvent reports whether an event with the given URI was recorded.
func (d *Data) HasEvent(uri string) bool {
	if d == nil {
		return false
	}
	_, ok := d.events[uri]
	return ok
}

// Events returns the event records in first-seen order.
func (d *Data) Events() []*EventRecord {
	if d == nil {
		return nil
	}
	out := make([]*EventRecord, 0, len(d.eventOrder))
	for _, u := range d.eventOrder {
		out = append(out, d.events[u])
	}
	return out
}

// Pending returns the events still waiting for port operation results.
func (d *Data) Pending() []*ir.PortEvent {
	var out []*ir.PortEvent
	for _, r := range d.Events() {
		if !r.Event.Completed() {
			out = append(out, r.Event)
		}
	}
	return out
}

// AddTag merges one sighting. Returns true when the key is new.
func (d *Data) AddTag(key ir.PrimaryKey, readerName string, tag ir.Tag, now time.Time) bool {
	s := Sighting{Reader: readerName, Antenna: tag.Antenna, RSSI: tag.RSSI, Time: now}
	if r, ok := d.tags[key]; ok {
		r.History = append(r.History, s)
		r.LastSeen = now
		if !slices.Contains(r.Readers, readerName) {
			r.Readers = append(r.Readers, readerName)
		}
		return false
	}
	d.tags[key] = &TagRecord{
		Key:       key,
		Tag:       tag,
		Readers:   []string{readerName},
		History:   []Sighting{s},
		FirstSeen: now,
		LastSeen:  now,
	}
	d.tagOrder = append(d.tagOrder, key)
	return true
}

// AddEvent merges one port event. Returns true when the URI is new.
func (d *Data) AddEvent(ev *ir.PortEvent, now time.Time) bool {
	if r, ok := d.events[ev.URI]; ok {
		r.Count++
		r.LastSeen = now
		return false
	}
	d.events[ev.URI] = &EventRecord{Event: ev, Count: 1, FirstSeen: now, LastSeen: now}
	d.eventOrder = append(d.eventOrder, ev.URI)
	return true
}
