package diagnosis

import "context"

// ErrorSummary is the diagnosis_summary value of a failed diagnosis.
const ErrorSummary = "ERROR"

// Result is the clinical assistant's response for one conversation snippet.
type Result struct {
	Summary  string `json:"diagnosis_summary"`
	Document string `json:"docx_base64"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether r is an error sentinel.
func (r Result) Failed() bool {
	return r.Summary == ErrorSummary && r.Error != ""
}

// ErrorResult builds the sentinel pushed when diagnosis fails.
func ErrorResult(err error) Result {
	msg := "diagnosis failed"
	if err != nil {
		msg = err.Error()
	}
	return Result{Summary: ErrorSummary, Document: "", Error: msg}
}

// Diagnoser invokes the clinical assistant.
type Diagnoser interface {
	Name() string
	// Diagnose returns a result for the conversation text. Failures carry
	// the agent_invocation reason code.
	Diagnose(ctx context.Context, conversation string) (Result, error)
}

// PatientInput is the envelope sent to the assistant. Demographics are
// unknown at capture time.
type PatientInput struct {
	Gender         string `json:"gender"`
	Age            int    `json:"age"`
	Symptoms       string `json:"symptoms"`
	MedicalHistory string `json:"medical_history"`
}

// NewPatientInput fills the envelope from a conversation snippet.
func NewPatientInput(conversation string) PatientInput {
	return PatientInput{
		Gender:         "unknown",
		Age:            0,
		Symptoms:       conversation,
		MedicalHistory: conversation,
	}
}
