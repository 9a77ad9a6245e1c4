package sync

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"ledgersync/internal/domain/account"
)

func TestExtractProviderAccountIDs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{"scalar string", `{"event":{"data":{"providerAccountId":"501"}}}`, []string{"501"}, false},
		{"scalar number", `{"event":{"data":{"providerAccountId":501}}}`, []string{"501"}, false},
		{"array mixed", `{"event":{"data":{"providerAccountId":[501,"502",501]}}}`, []string{"501", "502"}, false},
		{"missing", `{"event":{"info":"REFRESH.PROCESS_COMPLETED"}}`, nil, false},
		{"null", `{"event":{"data":{"providerAccountId":null}}}`, nil, false},
		{"unexpected shape", `{"event":"refresh"}`, nil, false},
		{"invalid JSON", `{"event":`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractProviderAccountIDs([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractProviderAccountIDs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidWebhook) {
				t.Errorf("error = %v, want ErrInvalidWebhook", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractProviderAccountIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFallbackPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FallbackPolicy
		wantErr bool
	}{
		{"", FallbackAllActive, false},
		{"all_active", FallbackAllActive, false},
		{"NONE", FallbackNone, false},
		{"everything", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFallbackPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFallbackPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFallbackPolicy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTargeter_Targets(t *testing.T) {
	h := newHarness()
	h.addConnection("by-provider").ProviderID = "700"
	h.addConnection("by-snapshot").ProviderID = "800"
	h.addConnection("unrelated").ProviderID = "900"
	deleted := h.addConnection("deleted")
	deleted.ProviderID = "700"
	deleted.ScheduledForDeletion = true
	running := h.addConnection("running")
	running.ProviderID = "700"
	started := time.Now()
	running.SyncState = "running"
	running.SyncStartedAt = &started

	if _, err := h.snapshots.Upsert(context.Background(), account.UpsertSnapshotParams{
		ConnectionID:      "by-snapshot",
		ExternalAccountID: "1001",
		ProviderAccountID: "501",
		RawPayload:        []byte(`{}`),
		SyncedAt:          testNow,
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	tests := []struct {
		name   string
		policy FallbackPolicy
		ids    []string
		want   []string
	}{
		{"provider id match", FallbackAllActive, []string{"700"}, []string{"by-provider"}},
		{"snapshot provider account match", FallbackAllActive, []string{"501"}, []string{"by-snapshot"}},
		{"snapshot external id match", FallbackAllActive, []string{"1001"}, []string{"by-snapshot"}},
		{"no match", FallbackAllActive, []string{"nope"}, nil},
		{"fallback all active", FallbackAllActive, nil, []string{"by-provider", "by-snapshot", "unrelated"}},
		{"fallback none", FallbackNone, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targeter := NewTargeter(h.connections, tt.policy, nil)
			conns, err := targeter.Targets(context.Background(), tt.ids)
			if err != nil {
				t.Fatalf("Targets() failed: %v", err)
			}

			var got []string
			for _, c := range conns {
				got = append(got, c.ID)
			}
			sort.Strings(got)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Targets() = %v, want %v", got, tt.want)
			}
		})
	}
}
