package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatusValid(t *testing.T) {
	tests := []struct {
		status RequestStatus
		valid  bool
	}{
		{StatusWait, true},
		{StatusConsent, true},
		{StatusRejection, true},
		{RequestStatus(""), false},
		{RequestStatus("accepted"), false},
		{RequestStatus("WAIT"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
		})
	}
}

func TestRequestStatusDecided(t *testing.T) {
	assert.False(t, StatusWait.Decided(), "wait is the initial state, not a decision")
	assert.True(t, StatusConsent.Decided())
	assert.True(t, StatusRejection.Decided())
	assert.False(t, RequestStatus("maybe").Decided())
}
