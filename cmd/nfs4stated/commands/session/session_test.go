package session

import (
	"testing"
	"time"

	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

func TestSessionList_Rows(t *testing.T) {
	list := SessionList{
		{
			ID:              "0000000100000003000000000000000a",
			ClientID:        0x100000003,
			ForeSlots:       64,
			BackSlots:       8,
			SlotsInUse:      2,
			HighestUsedSlot: 5,
			CachedBytes:     512,
			CreatedAt:       time.Now().Add(-30 * time.Second),
		},
		{
			ID:              "0000000100000003000000000000000b",
			ClientID:        0x100000003,
			ForeSlots:       1,
			HighestUsedSlot: state.NoSlotUsed,
		},
	}

	rows := list.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(list.Headers()) {
		t.Fatalf("Row width %d does not match headers %d", len(rows[0]), len(list.Headers()))
	}

	want := []string{"0000000100000003000000000000000a", "0000000100000003", "64/8", "2", "5", "512B", "30s"}
	for i, w := range want {
		if rows[0][i] != w {
			t.Errorf("column %s = %q, want %q", list.Headers()[i], rows[0][i], w)
		}
	}
	if rows[1][4] != "-" {
		t.Errorf("Expected '-' for a session without used slots, got %q", rows[1][4])
	}
}
