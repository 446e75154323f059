package simulation

import (
	"strings"
	"testing"

	"github.com/nvandessel/colonysim/internal/models"
)

func TestBalanceErrors(t *testing.T) {
	sc, _ := Preset(PresetMetapopulation)
	result, err := Run(sc.Params)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if problems := balanceErrors(result); len(problems) != 0 {
		t.Fatalf("unmodified run is unbalanced: %v", problems)
	}

	tests := []struct {
		name   string
		tamper func(snap *models.Snapshot)
		want   string
	}{
		{
			name: "female moved between categories is still balanced",
			tamper: func(snap *models.Snapshot) {
				snap.Focal.Sterilized += 1
				snap.Focal.NonBreeding -= 1
			},
		},
		{
			name:   "female appearing from nowhere",
			tamper: func(snap *models.Snapshot) { snap.Focal.AMH += 1 },
			want:   "step 5: focal",
		},
		{
			name:   "unrecorded neighborhood death",
			tamper: func(snap *models.Snapshot) { snap.Neighborhood.NonBreeding -= 2 },
			want:   "step 5: neighborhood",
		},
		{
			name:   "migrant never counted",
			tamper: func(snap *models.Snapshot) { snap.Migration.Arrivals += 1 },
			want:   "step 5: focal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := *result
			tampered.Snapshots = append([]models.Snapshot(nil), result.Snapshots...)
			snap := tampered.Snapshots[5]
			snap.Focal = snap.Focal.Clone()
			snap.Neighborhood = snap.Neighborhood.Clone()
			tt.tamper(&snap)
			tampered.Snapshots[5] = snap

			problems := balanceErrors(&tampered)
			if tt.want == "" {
				if len(problems) != 0 {
					t.Errorf("expected balance, got %v", problems)
				}
				return
			}
			// The tampered state is also the next step's starting point, so
			// step 6 is reported too.
			if len(problems) == 0 || !strings.HasPrefix(problems[0], tt.want) {
				t.Errorf("expected first problem to start with %q, got %v", tt.want, problems)
			}
		})
	}
}
