package utils

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(2 * 1024 * 1024); got != "2.0 MB/s" {
		t.Errorf("FormatRate() = %q, want 2.0 MB/s", got)
	}
}

func TestThroughput(t *testing.T) {
	tests := []struct {
		n    int64
		d    time.Duration
		want float64
	}{
		{1000, time.Second, 1000},
		{1000, 2 * time.Second, 500},
		{1000, 0, 0},
	}
	for _, tt := range tests {
		if got := Throughput(tt.n, tt.d); got != tt.want {
			t.Errorf("Throughput(%d, %v) = %v, want %v", tt.n, tt.d, got, tt.want)
		}
	}
}
