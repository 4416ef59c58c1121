package discovery

import "time"

// Outcome is how a discovery attempt ended.
type Outcome string

// Attempt outcomes.
const (
	OutcomeRegistered      Outcome = "registered"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeUnmappedType    Outcome = "unmapped_type"
	OutcomeNoCallback      Outcome = "no_callback"
	OutcomeFetchFailed     Outcome = "fetch_failed"
	OutcomeUnsupported     Outcome = "unsupported"
	OutcomeConstructFailed Outcome = "construct_failed"
	OutcomeRegisterFailed  Outcome = "register_failed"
	OutcomePanic           Outcome = "panic"
)

// Attempt describes one discovery attempt that got past the pending guard.
// Skipped attempts are counted but not recorded.
type Attempt struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	VendorType string    `json:"vendor_type"`
	Category   string    `json:"category,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Attempt) fail(outcome Outcome, err error) {
	a.Outcome = outcome
	if err != nil {
		a.Error = err.Error()
	}
}
