package money

import "testing"

func TestSplit_ConservesStake(t *testing.T) {
	cases := []struct {
		stake      int64
		feeBps     int
		wantPayout int64
		wantFee    int64
	}{
		{1000, 500, 950, 50},
		{500, 500, 475, 25},
		{999, 500, 949, 50},   // floor on the payout side
		{1, 500, 0, 1},        // fee absorbs the whole remainder
		{100000, 500, 95000, 5000},
		{1000, 0, 1000, 0},
	}

	for _, tc := range cases {
		payout, fee := Split(tc.stake, tc.feeBps)
		if payout != tc.wantPayout || fee != tc.wantFee {
			t.Errorf("Split(%d, %d) = (%d, %d), want (%d, %d)",
				tc.stake, tc.feeBps, payout, fee, tc.wantPayout, tc.wantFee)
		}
		if payout+fee != tc.stake {
			t.Errorf("Split(%d, %d) does not conserve the stake: %d + %d", tc.stake, tc.feeBps, payout, fee)
		}
	}
}

func TestSplit_ClampsFeeBps(t *testing.T) {
	payout, fee := Split(1000, -5)
	if payout != 1000 || fee != 0 {
		t.Errorf("negative bps should clamp to 0, got payout=%d fee=%d", payout, fee)
	}
	payout, fee = Split(1000, 20000)
	if payout != 0 || fee != 1000 {
		t.Errorf("oversized bps should clamp to 10000, got payout=%d fee=%d", payout, fee)
	}
}

func TestFormat(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		1050:  "10.50",
		-325:  "-3.25",
		100:   "1.00",
	}
	for minor, want := range cases {
		if got := Format(minor); got != want {
			t.Errorf("Format(%d) = %q, want %q", minor, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(100); err != nil {
		t.Errorf("Validate(100) = %v, want nil", err)
	}
	if err := Validate(0); err == nil {
		t.Error("Validate(0) should fail")
	}
	if err := Validate(-1); err == nil {
		t.Error("Validate(-1) should fail")
	}
}
