package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTranscription)
	if Reason(err) != ReasonTranscription {
		t.Fatalf("expected reason %s, got %s", ReasonTranscription, Reason(err))
	}
	if !HasReason(err, ReasonTranscription) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonDecode)
	second := Wrap(fmt.Errorf("stage: %w", first), ReasonTranscription)
	if Reason(second) != ReasonDecode {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestKindGroupsReasons(t *testing.T) {
	cases := map[ReasonCode]ErrorKind{
		ReasonValidation:      KindValidation,
		ReasonDecode:          KindDecode,
		ReasonTranslation:     KindCollaborator,
		ReasonAgentInvocation: KindCollaborator,
		ReasonCircuitOpen:     KindCollaborator,
		ReasonAllSendsFailed:  KindDelivery,
		ReasonTransportBind:   KindUnknown,
	}
	for reason, want := range cases {
		if got := Kind(New(reason, "boom")); got != want {
			t.Fatalf("reason %s: expected kind %s, got %s", reason, want, got)
		}
	}
	if Kind(nil) != KindUnknown {
		t.Fatalf("nil error should be unknown kind")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestForFragmentKeepsReasonAndID(t *testing.T) {
	err := ForFragment(Wrap(assertErr{}, ReasonTranslation), "f-1")
	if Reason(err) != ReasonTranslation {
		t.Fatalf("expected translation reason, got %s", Reason(err))
	}
	if FragmentID(fmt.Errorf("batch: %w", err)) != "f-1" {
		t.Fatalf("expected fragment id through wrapping")
	}
	if err.Error() != "fragment f-1: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if ForFragment(nil, "x") != nil {
		t.Fatalf("nil error should stay nil")
	}
}
