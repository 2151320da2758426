package probe

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Transducer describes a probe head.
type Transducer struct {
	ID         uuid.UUID
	Name       string
	WidthMm    float64
	Elements   int
	InternalID int
}

// DefaultTransducer is used while no transducer ID is configured.
var DefaultTransducer = Transducer{
	Name:       "default linear",
	WidthMm:    38.1,
	Elements:   128,
	InternalID: 0,
}

var transducers = struct {
	sync.RWMutex
	byID map[uuid.UUID]Transducer
}{byID: map[uuid.UUID]Transducer{}}

func init() {
	RegisterTransducer(Transducer{
		ID:         uuid.MustParse("c6a3e2b4-0c7e-4f0b-9d5d-6b1f6d1d8a01"),
		Name:       "L8-3",
		WidthMm:    38.1,
		Elements:   128,
		InternalID: 1,
	})
	RegisterTransducer(Transducer{
		ID:         uuid.MustParse("c6a3e2b4-0c7e-4f0b-9d5d-6b1f6d1d8a02"),
		Name:       "L12-5",
		WidthMm:    50.0,
		Elements:   192,
		InternalID: 2,
	})
}

// RegisterTransducer adds or replaces a transducer definition.
func RegisterTransducer(t Transducer) {
	transducers.Lock()
	defer transducers.Unlock()
	transducers.byID[t.ID] = t
}

// LookupTransducer returns the transducer for a GUID string. An empty string
// yields DefaultTransducer. A valid but unknown GUID yields the default
// geometry with InternalID -1.
func LookupTransducer(guid string) (Transducer, error) {
	if guid == "" {
		return DefaultTransducer, nil
	}
	id, err := uuid.Parse(guid)
	if err != nil {
		return Transducer{}, fmt.Errorf("%w: transducer id %q: %v", ErrValidation, guid, err)
	}
	transducers.RLock()
	t, ok := transducers.byID[id]
	transducers.RUnlock()
	if ok {
		return t, nil
	}
	t = DefaultTransducer
	t.ID = id
	t.Name = "unknown"
	t.InternalID = -1
	return t, nil
}
