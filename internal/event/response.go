package event

// Response is the 200 body of an ingest POST: one result per input event,
// in input order.
type Response struct {
	EventsStatus []EventResult `json:"events_status"`
}

// EventResult acknowledges a single event. Only the register event's result
// carries registration material, and at most once per response.
type EventResult struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	RegistrationData *RegistrationData `json:"registration_data,omitempty"`
}

// RegistrationData hands a first-time device its credentials: the caller's
// API token and the sealed device-id cookie to replay on future requests.
type RegistrationData struct {
	APIToken string `json:"api_token"`
	DeviceID string `json:"device_id"`
}

// StatusSuccess is the only per-event status the gateway emits; failures are
// whole-request failures.
const StatusSuccess = "success"
