package grace

import (
	"testing"
	"time"

	"github.com/marmos91/nfs4state/pkg/apiclient"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

func TestGraceFields(t *testing.T) {
	inactive := graceFields(&apiclient.GraceStatusResponse{Message: "Grace period not active"})
	rows := inactive.Rows()
	if len(rows) != 2 || rows[0][1] != "false" || rows[1][1] != "Grace period not active" {
		t.Errorf("Unexpected inactive rows: %v", rows)
	}

	active := graceFields(&apiclient.GraceStatusResponse{
		GraceStatus: state.GraceStatus{
			Active:           true,
			RemainingSeconds: 42.4,
			TotalDuration:    90 * time.Second,
			ExpectedClients:  3,
			ReclaimedClients: 1,
			StartedAt:        time.Now(),
		},
	})
	fields := map[string]string{}
	for _, r := range active.Rows() {
		fields[r[0]] = r[1]
	}
	if fields["Remaining"] != "42s" {
		t.Errorf("Remaining = %q", fields["Remaining"])
	}
	if fields["Duration"] != "1m30s" {
		t.Errorf("Duration = %q", fields["Duration"])
	}
	if fields["Expected"] != "3 clients" || fields["Reclaimed"] != "1 clients" {
		t.Errorf("Unexpected counts: %v", fields)
	}
}
