package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	testCases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingExport, StatusDelivered, true},
		{StatusPendingExport, StatusUploadFailed, true},
		{StatusPendingExport, StatusPendingExport, false},
		{StatusUploadFailed, StatusDelivered, true},
		{StatusUploadFailed, StatusPendingExport, true},
		{StatusUploadFailed, StatusUploadFailed, true},
		{StatusDelivered, StatusPendingExport, false},
		{StatusDelivered, StatusUploadFailed, false},
		{StatusDelivered, StatusDelivered, false},
		{Status("bogus"), StatusDelivered, false},
	}

	for _, tc := range testCases {
		got := ValidTransition(tc.from, tc.to)
		assert.Equal(t, tc.want, got, "ValidTransition(%s, %s)", tc.from, tc.to)
	}
}
