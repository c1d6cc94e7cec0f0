package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsEveryGroup(t *testing.T) {
	var o Options
	o.SetDefaults()

	require.Equal(t, 4, o.FanoutLimit)
	require.Equal(t, 5, o.Breaker.FailureThreshold)
	require.Equal(t, 0.5, o.Confidence.Floor)
	require.Equal(t, 0.30, o.Adversarial.SycophancyThreshold)
	require.Equal(t, "hashing", o.Embedder.Provider)
	require.NoError(t, o.Validate(), "defaulted options should validate")
}

func TestValidateRejectsBadFanout(t *testing.T) {
	o := Options{FanoutLimit: 0}
	o.SetDefaults()
	o.FanoutLimit = 0
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for fanout_limit 0")
	}
}

func TestValidateRejectsOutOfRangeFloor(t *testing.T) {
	o := Options{}
	o.SetDefaults()
	o.Confidence.Floor = 1.5
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for confidence floor > 1")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/options.yaml"); err == nil {
		t.Fatal("expected error loading a missing file")
	}
}
