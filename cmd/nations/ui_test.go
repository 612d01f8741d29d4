package main

import (
	"errors"
	"math"
	"testing"

	cl "nations/internal/cli"
)

func TestComma(t *testing.T) {
	tests := map[int64]string{
		0:             "0",
		999:           "999",
		1000:          "1,000",
		-1500:         "-1,500",
		123456789:     "123,456,789",
		math.MaxInt64: "9,223,372,036,854,775,807",
		math.MinInt64: "-9,223,372,036,854,775,808",
	}
	for in, want := range tests {
		if got := comma(in); got != want {
			t.Fatalf("comma(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Atlantis of the Deep Sea", 10); got != "Atlanti..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("Rome", 10); got != "Rome" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestDescribeError(t *testing.T) {
	err := &cl.APIError{Status: 400, Kind: "InsufficientFunds", Message: "wallet has 5"}
	if got := describeError(err); got != "Not enough money: wallet has 5" {
		t.Fatalf("describeError = %q", got)
	}
	if got := describeError(errors.New("dial tcp: refused")); got != "error: dial tcp: refused" {
		t.Fatalf("describeError = %q", got)
	}
}
