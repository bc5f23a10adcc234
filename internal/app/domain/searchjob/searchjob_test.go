package searchjob

import "testing"

func TestBlockCountRoundsUpPartialRanges(t *testing.T) {
	if got := (Job{RangeStart: 0, RangeEnd: 100, BlockSize: 100}).BlockCount(); got != 1 {
		t.Fatalf("expected an exact-fit range to need 1 block, got %d", got)
	}
	if got := (Job{RangeStart: 0, RangeEnd: 101, BlockSize: 100}).BlockCount(); got != 2 {
		t.Fatalf("expected a one-unit remainder to round up to 2 blocks, got %d", got)
	}
}

func TestBlockCountIsZeroForEmptyOrInvalidRanges(t *testing.T) {
	if got := (Job{RangeStart: 10, RangeEnd: 10, BlockSize: 100}).BlockCount(); got != 0 {
		t.Fatalf("expected a zero-width range to need 0 blocks, got %d", got)
	}
	if got := (Job{RangeStart: 0, RangeEnd: 100, BlockSize: 0}).BlockCount(); got != 0 {
		t.Fatalf("expected a zero block size to be treated as unmaterialisable, got %d", got)
	}
}

func TestEligibleEnforcesEveryPresentRequirement(t *testing.T) {
	params := map[string]any{
		ReqMinCores:    4,
		ReqMinRAMGB:    8,
		ReqRequiresGPU: true,
		ReqRequiredOS:  "Linux",
	}

	ok := Capabilities{Cores: 8, RAMGB: 16, HasGPU: true, OS: "linux"}
	if !Eligible(params, ok) {
		t.Fatalf("expected a node meeting every requirement to be eligible")
	}

	tooFewCores := ok
	tooFewCores.Cores = 2
	if Eligible(params, tooFewCores) {
		t.Fatalf("expected insufficient cores to disqualify a node")
	}

	noGPU := ok
	noGPU.HasGPU = false
	if Eligible(params, noGPU) {
		t.Fatalf("expected a missing GPU to disqualify a node when required")
	}

	wrongOS := ok
	wrongOS.OS = "windows"
	if Eligible(params, wrongOS) {
		t.Fatalf("expected a mismatched required_os to disqualify a node")
	}
}

func TestEligibleIgnoresAbsentRequirements(t *testing.T) {
	if !Eligible(map[string]any{}, Capabilities{}) {
		t.Fatalf("expected an empty params bag to impose no constraints")
	}
}

func TestEligibleAcceptsNumericParamsFromJSONDecoding(t *testing.T) {
	params := map[string]any{ReqMinCores: float64(4)}
	if !Eligible(params, Capabilities{Cores: 4}) {
		t.Fatalf("expected a float64-typed requirement (as JSON decoding produces) to be honored")
	}
	if Eligible(params, Capabilities{Cores: 3}) {
		t.Fatalf("expected 3 cores to fail a min_cores=4 requirement")
	}
}
