package claims_test

import (
	"testing"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
)

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to claims.Status
		allowed  bool
	}{
		{claims.StatusPending, claims.StatusApproved, true},
		{claims.StatusPending, claims.StatusRejected, true},
		{claims.StatusPending, claims.StatusPaid, false}, // no state skipping
		{claims.StatusApproved, claims.StatusPaid, true},
		{claims.StatusApproved, claims.StatusRejected, false},
		{claims.StatusApproved, claims.StatusPending, false},
		{claims.StatusRejected, claims.StatusPending, false},
		{claims.StatusRejected, claims.StatusApproved, false},
		{claims.StatusPaid, claims.StatusRejected, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if claims.StatusPending.Terminal() || claims.StatusApproved.Terminal() {
		t.Error("pending/approved are not terminal")
	}
	if !claims.StatusRejected.Terminal() || !claims.StatusPaid.Terminal() {
		t.Error("rejected/paid are terminal")
	}
}

func TestStatus_ParseRoundTrip(t *testing.T) {
	for _, s := range []claims.Status{claims.StatusPending, claims.StatusApproved, claims.StatusRejected, claims.StatusPaid} {
		parsed, err := claims.ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%s): %v", s, err)
		}
		if parsed != s {
			t.Errorf("round trip %s: got %s", s, parsed)
		}
	}
	if _, err := claims.ParseStatus("settled"); err == nil {
		t.Error("unknown status should fail to parse")
	}
}

func TestClaim_Blocks(t *testing.T) {
	c := claims.Claim{Status: claims.StatusPending}
	if !c.Blocks() {
		t.Error("pending claim blocks resubmission")
	}
	c.Status = claims.StatusPaid
	if !c.Blocks() {
		t.Error("paid claim blocks resubmission")
	}
	c.Status = claims.StatusRejected
	if c.Blocks() {
		t.Error("rejected claim does not block resubmission")
	}
}
