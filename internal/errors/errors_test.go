package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("cannot route vehicle", ErrEmptyPath).WithVehicle("0/1/2")

	want := "precondition violation [vehicle=0/1/2]: cannot route vehicle: conflict zone path is empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrEmptyPath) {
		t.Error("expected errors.Is(err, ErrEmptyPath)")
	}
	if !IsFatal(err) {
		t.Error("precondition violations must be fatal")
	}
	if IsRetryable(err) {
		t.Error("precondition violations must not be retryable")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want critical", GetSeverity(err))
	}
}

func TestInfeasibleError_MatchesNoProposal(t *testing.T) {
	err := NewInfeasibleError("simulate order", ErrMissingState).WithVehicle("1/0/3")

	if !errors.Is(err, ErrNoProposal) {
		t.Error("infeasible schedules should read as 'no proposal'")
	}
	if !errors.Is(err, ErrMissingState) {
		t.Error("cause should be preserved")
	}
	if IsFatal(err) {
		t.Error("infeasible schedules are surfaced, not fatal")
	}

	wrapped := fmt.Errorf("leader 1/0: %w", err)
	var ie *InfeasibleError
	if !errors.As(wrapped, &ie) {
		t.Fatal("errors.As should find InfeasibleError through wrapping")
	}
	if ie.Vehicle != "1/0/3" {
		t.Errorf("Vehicle = %q, want %q", ie.Vehicle, "1/0/3")
	}
}

func TestMalformedMessageError(t *testing.T) {
	t.Run("defaults cause to ErrMalformed", func(t *testing.T) {
		err := NewMalformedMessageError("expected 11 fields", nil).WithTopic("state/0/1/2")
		if !errors.Is(err, ErrMalformed) {
			t.Error("expected errors.Is(err, ErrMalformed)")
		}
		want := "malformed message [topic=state/0/1/2]: expected 11 fields: malformed message"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("version errors still match ErrMalformed", func(t *testing.T) {
		err := NewMalformedMessageError("v9", ErrUnsupportedVersion)
		if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrUnsupportedVersion) {
			t.Error("expected both sentinels to match")
		}
		if GetSeverity(err) != SeverityWarning {
			t.Errorf("GetSeverity() = %v, want warning", GetSeverity(err))
		}
	})
}

func TestConsensusError(t *testing.T) {
	err := NewConsensusError("gave up", ErrPhaseTimeout).WithPhase("COLLECT_SCORES").WithFleet(1, 0)

	want := "consensus error [phase=COLLECT_SCORES, fleet=1/0]: gave up: consensus phase timed out"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var target *ConsensusError
	if !errors.As(err, &target) {
		t.Error("errors.As should match *ConsensusError")
	}
	if !errors.Is(err, &ConsensusError{}) {
		t.Error("errors.Is should match any *ConsensusError")
	}
}

func TestClassificationHelpers_PlainErrors(t *testing.T) {
	plain := errors.New("boom")

	if IsFatal(nil) || IsRetryable(nil) {
		t.Error("nil errors are neither fatal nor retryable")
	}
	if IsFatal(plain) {
		t.Error("plain errors are not fatal")
	}
	if !IsFatal(fmt.Errorf("stop: %w", ErrCanceled)) {
		t.Error("cancellation is fatal")
	}
	if GetSeverity(plain) != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want error", GetSeverity(plain))
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want debug", GetSeverity(nil))
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	err := Wrap(ErrMissingState, "collect states")
	if err.Error() != "collect states: missing kinematic state" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrMissingState) {
		t.Error("Wrap should preserve the chain")
	}
}
