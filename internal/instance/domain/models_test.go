package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusProvisioning},
		{StatusError, StatusProvisioning},
		{StatusProvisioning, StatusRunning},
		{StatusProvisioning, StatusError},
		{StatusRunning, StatusStopping},
		{StatusStopping, StatusStopped},
		{StatusStopped, StatusRunning},
		{StatusError, StatusTerminated},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusRunning},
		{StatusRunning, StatusProvisioning},
		{StatusTerminated, StatusPending},
		{StatusTerminated, StatusProvisioning},
		{StatusStopped, StatusStopping},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s denied", tc.from, tc.to)
		}
	}
}

func TestProvisioningStatusFor(t *testing.T) {
	cases := []struct {
		next Status
		prev ProvisioningStatus
		want ProvisioningStatus
	}{
		{StatusProvisioning, ProvisioningPending, ProvisioningInProgress},
		{StatusRunning, ProvisioningInProgress, ProvisioningCompleted},
		{StatusError, ProvisioningInProgress, ProvisioningFailed},
		{StatusStopped, ProvisioningCompleted, ProvisioningCompleted},
		{StatusTerminated, ProvisioningFailed, ProvisioningFailed},
	}
	for _, tc := range cases {
		if got := ProvisioningStatusFor(tc.next, tc.prev); got != tc.want {
			t.Errorf("ProvisioningStatusFor(%s, %s) = %s, want %s", tc.next, tc.prev, got, tc.want)
		}
	}
}

func TestBillingAllowsProvisioning(t *testing.T) {
	cases := []struct {
		billing BillingStatus
		want    bool
	}{
		{BillingTrial, true},
		{BillingPaid, true},
		{BillingPendingPayment, false},
		{BillingPaymentRequired, false},
		{BillingSuspended, false},
	}
	for _, tc := range cases {
		instance := &Instance{BillingStatus: tc.billing}
		if got := instance.BillingAllowsProvisioning(); got != tc.want {
			t.Errorf("BillingAllowsProvisioning(%s) = %v, want %v", tc.billing, got, tc.want)
		}
	}
}
