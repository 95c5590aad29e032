package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunLog_Rates(t *testing.T) {
	run := RunLog{ProspectsFound: 10, DuplicateCount: 8, ProposalsCreated: 1}
	assert.InDelta(t, 0.8, run.DuplicateRate(), 1e-9)
	assert.InDelta(t, 0.1, run.ConversionRate(), 1e-9)

	empty := RunLog{}
	assert.Zero(t, empty.DuplicateRate())
	assert.Zero(t, empty.ConversionRate())
}

func TestAutomationConfig_Due(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		config AutomationConfig
		want   bool
	}{
		{"disabled never due", AutomationConfig{Enabled: false}, false},
		{"nil next run is due", AutomationConfig{Enabled: true}, true},
		{"past next run is due", AutomationConfig{Enabled: true, NextRunAt: &past}, true},
		{"exact boundary is due", AutomationConfig{Enabled: true, NextRunAt: &now}, true},
		{"future next run not due", AutomationConfig{Enabled: true, NextRunAt: &future}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.Due(now))
		})
	}
}

func TestAutomationConfig_Interval(t *testing.T) {
	config := AutomationConfig{IntervalMinutes: 30}
	assert.Equal(t, 30*time.Minute, config.Interval())
}
