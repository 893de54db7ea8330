package reconcile

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/ports"
)

func TestCompareHedged(t *testing.T) {
	rep := Compare(Leg{Venue: "edgex", SignedSize: 0.5}, Leg{Venue: "aster", SignedSize: -0.5})
	if rep.Verdict != VerdictHedged {
		t.Fatalf("verdict = %s, want hedged", rep.Verdict)
	}
	if rep.DeltaAbs > 1e-12 {
		t.Fatalf("delta = %v, want 0", rep.DeltaAbs)
	}
	if !rep.Hedged() {
		t.Fatalf("Hedged() = false")
	}
}

func TestCompareExposed(t *testing.T) {
	rep := Compare(Leg{SignedSize: 0.5}, Leg{SignedSize: -0.3})
	if rep.Verdict != VerdictExposed {
		t.Fatalf("verdict = %s, want exposed", rep.Verdict)
	}
	if math.Abs(rep.DeltaAbs-0.2) > 1e-9 {
		t.Fatalf("delta = %v, want 0.2", rep.DeltaAbs)
	}
}

func TestCompareBothFlat(t *testing.T) {
	rep := Compare(Leg{}, Leg{})
	if rep.Verdict != VerdictHedged {
		t.Fatalf("verdict = %s, want hedged for flat/flat", rep.Verdict)
	}
}

func TestCompareThresholdBoundary(t *testing.T) {
	// 恰好等于阈值时判定为 exposed
	rep := Compare(Leg{SignedSize: HedgedThreshold}, Leg{SignedSize: 0})
	if rep.Verdict != VerdictExposed {
		t.Fatalf("verdict at threshold = %s, want exposed", rep.Verdict)
	}
	rep = Compare(Leg{SignedSize: HedgedThreshold / 2}, Leg{SignedSize: 0})
	if rep.Verdict != VerdictHedged {
		t.Fatalf("verdict below threshold = %s, want hedged", rep.Verdict)
	}
}

type posClient struct {
	ports.ExchangeClient
	pos domain.Position
	err error
}

func (c *posClient) Position(ctx context.Context, instrument string) (domain.Position, error) {
	return c.pos, c.err
}

func newLeg(venue string, signed float64, err error) VenueLeg {
	return VenueLeg{
		Venue:      venue,
		Instrument: "BTC-USDT",
		Client:     &posClient{pos: domain.Position{Instrument: "BTC-USDT", SignedSize: signed}, err: err},
		Gov:        governor.New(venue, time.Nanosecond),
	}
}

func TestReconcileFetchesBothLegs(t *testing.T) {
	r := &Reconciler{A: newLeg("edgex", 1.25, nil), B: newLeg("aster", -1.25, nil)}
	rep, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Verdict != VerdictHedged {
		t.Fatalf("verdict = %s, want hedged", rep.Verdict)
	}
	if rep.LegA.Venue != "edgex" || rep.LegB.Venue != "aster" {
		t.Fatalf("legs mislabelled: %s / %s", rep.LegA.Venue, rep.LegB.Venue)
	}
}

func TestReconcilePropagatesLegError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	r := &Reconciler{A: newLeg("edgex", 1, nil), B: newLeg("aster", 0, wantErr)}
	if _, err := r.Reconcile(context.Background()); err == nil {
		t.Fatalf("expected error from failing leg")
	}
}

func TestReportJSONShape(t *testing.T) {
	rep := Compare(Leg{Venue: "edgex", SignedSize: 0.5}, Leg{Venue: "aster", SignedSize: -0.3})
	raw, err := json.Marshal(&rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"leg_a", "leg_b", "delta_abs", "verdict"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, raw)
		}
	}
}
