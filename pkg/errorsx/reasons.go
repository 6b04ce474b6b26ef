package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonValidation ReasonCode = "validation"
	ReasonDecode     ReasonCode = "decode"

	ReasonTranscription   ReasonCode = "transcription"
	ReasonTranslation     ReasonCode = "translation"
	ReasonAgentInvocation ReasonCode = "agent_invocation"
	ReasonRateLimit       ReasonCode = "rate_limit"
	ReasonCircuitOpen     ReasonCode = "circuit_open"

	ReasonDelivery       ReasonCode = "delivery"
	ReasonNoSubscribers  ReasonCode = "no_subscribers"
	ReasonAllSendsFailed ReasonCode = "all_sends_failed"

	ReasonTransportBind ReasonCode = "transport_bind"
)

// ErrorKind groups reason codes into the containment classes the pipeline
// recovers from.
type ErrorKind string

const (
	KindUnknown      ErrorKind = "unknown"
	KindValidation   ErrorKind = "validation"
	KindDecode       ErrorKind = "decode"
	KindCollaborator ErrorKind = "collaborator"
	KindDelivery     ErrorKind = "delivery"
)

// Kind classifies err by its reason code.
func Kind(err error) ErrorKind {
	switch Reason(err) {
	case ReasonValidation:
		return KindValidation
	case ReasonDecode:
		return KindDecode
	case ReasonTranscription, ReasonTranslation, ReasonAgentInvocation, ReasonRateLimit, ReasonCircuitOpen:
		return KindCollaborator
	case ReasonDelivery, ReasonNoSubscribers, ReasonAllSendsFailed:
		return KindDelivery
	default:
		return KindUnknown
	}
}
