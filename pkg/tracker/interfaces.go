package tracker

import (
	"context"
	"time"

	"github.com/sifary/whatstrax/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Timer(d time.Duration) Timer
}

// Timer abstracts a one-shot timer.
type Timer interface {
	Chan() <-chan time.Time
	Stop()
}

// ProbeAdapter turns an abstract "send probe" into a transport-specific call
// and feeds raw transport events back as AckEvents.
//
// SendProbe returns ErrTransportUnavailable while the underlying connection
// is down and ErrAdapterBusy if the transport refuses to interleave a new
// request with an outstanding one.
//
// Subscribe returns the ack feed for a target plus a cancel func. Push-ack
// transports deliver the full broadcast stream on every feed; the correlator
// filters by probe identity.
type ProbeAdapter interface {
	SendProbe(ctx context.Context, target string) (*models.ProbeRequest, error)
	Subscribe(target string) (<-chan models.AckEvent, func())
}

// SampleConsumer receives classified presence samples. Implementations must
// not block: slow consumers degrade durability, never probing latency.
type SampleConsumer interface {
	ConsumeSample(sample *models.PresenceSample)
}

// EventConsumer receives session lifecycle notices.
type EventConsumer interface {
	ConsumeEvent(event *models.SessionEvent)
}
