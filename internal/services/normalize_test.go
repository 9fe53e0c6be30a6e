package services

import (
	"reflect"
	"testing"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
)

func TestNormalizeComposition(t *testing.T) {
	tests := []struct {
		name string
		in   models.Composition
		want models.Composition
	}{
		{
			name: "lower case names",
			in:   models.Composition{"cotton": 60, "polyester": 40},
			want: models.Composition{"Cotton": 60, "Polyester": 40},
		},
		{
			name: "upper case names",
			in:   models.Composition{"ELASTANE": 5, "viSCose": 95},
			want: models.Composition{"Elastane": 5, "Viscose": 95},
		},
		{
			name: "values not summing to 100 are kept",
			in:   models.Composition{"wool": 70},
			want: models.Composition{"Wool": 70},
		},
		{
			name: "non-ascii first letter",
			in:   models.Composition{"łyko": 100},
			want: models.Composition{"Łyko": 100},
		},
		{
			name: "colliding keys, last in byte order wins",
			in:   models.Composition{"COTTON": 10, "cotton": 90},
			want: models.Composition{"Cotton": 90},
		},
		{
			name: "empty",
			in:   models.Composition{},
			want: models.Composition{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeComposition(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeComposition(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if again := NormalizeComposition(got); !reflect.DeepEqual(again, got) {
				t.Errorf("not idempotent: %v -> %v", got, again)
			}
		})
	}
}

func TestParseComposition(t *testing.T) {
	got := ParseComposition(map[string]interface{}{
		"cotton":    float64(60),
		"polyester": "35%",
		"elastane":  " 5 ",
		"unknown":   true,
	})
	want := models.Composition{"cotton": 60, "polyester": 35, "elastane": 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseComposition = %v, want %v", got, want)
	}

	got = ParseComposition(map[string]interface{}{
		"cotton":    "NaN",
		"wool":      "Infinity",
		"silk":      "-inf",
		"polyester": "40%",
	})
	if want := (models.Composition{"polyester": 40}); !reflect.DeepEqual(got, want) {
		t.Errorf("non-finite values kept: %v", got)
	}

	if got := ParseComposition("cotton"); got != nil {
		t.Errorf("ParseComposition(string) = %v, want nil", got)
	}
}
