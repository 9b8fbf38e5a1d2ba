package domain

import "strconv"

// RecordKind names a record variant.
type RecordKind string

// Record kinds.
const (
	KindAdvertisement RecordKind = "advertisement"
	KindImage         RecordKind = "image"
	KindPhone         RecordKind = "phone"
)

// Record is one of *Advertisement, *Image or *PhoneNumber.
// The unexported method keeps the set closed.
type Record interface {
	Kind() RecordKind
	// Key identifies the record in log lines.
	Key() string
	record()
}

func (*Advertisement) record() {}
func (*Image) record()         {}
func (*PhoneNumber) record()   {}

// Kind implements Record.
func (*Advertisement) Kind() RecordKind { return KindAdvertisement }

// Kind implements Record.
func (*Image) Kind() RecordKind { return KindImage }

// Kind implements Record.
func (*PhoneNumber) Kind() RecordKind { return KindPhone }

// Key implements Record.
func (a *Advertisement) Key() string { return a.ID }

// Key implements Record.
func (i *Image) Key() string { return i.AdvtID + " " + i.URL }

// Key implements Record.
func (p *PhoneNumber) Key() string { return p.AdvtID + " " + strconv.FormatInt(p.Phone, 10) }
