package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// OutcomeEnvelope carries the typed outcome of an intent operation next to
// its payload.
type OutcomeEnvelope struct {
	Outcome string `json:"outcome"`
	Data    any    `json:"data,omitempty"`
}
