package connection

import "testing"

func TestCreateParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantErr bool
	}{
		{
			name:   "valid",
			params: CreateParams{FamilyID: "fam-1", Name: "Chase", SessionToken: "sbMem1"},
		},
		{
			name:    "missing family",
			params:  CreateParams{Name: "Chase", SessionToken: "sbMem1"},
			wantErr: true,
		},
		{
			name:    "missing name",
			params:  CreateParams{FamilyID: "fam-1", SessionToken: "sbMem1"},
			wantErr: true,
		},
		{
			name:    "missing session",
			params:  CreateParams{FamilyID: "fam-1", Name: "Chase"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnection_Predicates(t *testing.T) {
	c := &Connection{SyncState: SyncStateRunning}
	if !c.IsSyncing() {
		t.Error("IsSyncing() = false, want true")
	}
	if !c.IsActive() {
		t.Error("IsActive() = false, want true")
	}

	c.ScheduledForDeletion = true
	if c.IsActive() {
		t.Error("IsActive() = true for connection scheduled for deletion")
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"good", "requires_update"} {
		if !IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = false, want true", s)
		}
	}
	if IsValidStatus("broken") {
		t.Error("IsValidStatus(\"broken\") = true, want false")
	}
}

func TestSyncRun_IsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunRunning, false},
		{RunCompleted, true},
		{RunFailed, true},
	}
	for _, tt := range tests {
		r := &SyncRun{Status: tt.status}
		if got := r.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal() for %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}
