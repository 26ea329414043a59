package types

import (
	"math/big"
	"testing"
)

func TestBidCondition_Satisfied(t *testing.T) {
	tests := []struct {
		name      string
		cond      BidCondition
		value     int64
		threshold int64
		want      bool
	}{
		{"gte above", ConditionGTE, 2001, 2000, true},
		{"gte equal", ConditionGTE, 2000, 2000, true},
		{"gte below", ConditionGTE, 1999, 2000, false},
		{"lte below", ConditionLTE, 1999, 2000, true},
		{"lte equal", ConditionLTE, 2000, 2000, true},
		{"lte above", ConditionLTE, 2001, 2000, false},
		{"unknown", BidCondition(7), 2000, 2000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cond.Satisfied(big.NewInt(tt.value), big.NewInt(tt.threshold))
			if got != tt.want {
				t.Errorf("Satisfied(%d, %d) = %v, want %v", tt.value, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestBidStatus_Terminal(t *testing.T) {
	if BidActive.Terminal() {
		t.Error("active should not be terminal")
	}
	for _, s := range []BidStatus{BidAwarded, BidLost, BidExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestOpportunity_Condition(t *testing.T) {
	up := Opportunity{CurrentPrice: big.NewInt(1995), TransmutationValue: big.NewInt(1998)}
	if got := up.Condition(); got != ConditionGTE {
		t.Errorf("Condition() = %s, want GTE", got)
	}
	down := Opportunity{CurrentPrice: big.NewInt(1995), TransmutationValue: big.NewInt(1991)}
	if got := down.Condition(); got != ConditionLTE {
		t.Errorf("Condition() = %s, want LTE", got)
	}
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FormatUnits(v); got != "1.5" {
		t.Errorf("FormatUnits = %s, want 1.5", got)
	}
	if got := FormatUnits(nil); got != "0" {
		t.Errorf("FormatUnits(nil) = %s, want 0", got)
	}
}

func TestParseUnits(t *testing.T) {
	want, _ := new(big.Int).SetString("2500000000000000000", 10)
	if got := ParseUnits(2.5); got.Cmp(want) != 0 {
		t.Errorf("ParseUnits(2.5) = %s, want %s", got, want)
	}
	if got := ParseUnits(0); got.Sign() != 0 {
		t.Errorf("ParseUnits(0) = %s, want 0", got)
	}
}
