package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/authz"
)

func TestLogger_RecordToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)

	req := &authz.Request{Subject: "alice", Resource: "/orders/42", Action: "GET"}
	l.Record(context.Background(), req, &authz.Decision{
		Allowed:         true,
		Reason:          authz.ReasonAllowed,
		SnapshotVersion: "v1",
	})
	l.Record(context.Background(), &authz.Request{
		Subject:    "root",
		Resource:   "/vault",
		Action:     "DELETE",
		Attributes: authz.AttributeBag{"roles": []string{"Superuser"}},
	}, &authz.Decision{
		Allowed: true,
		Reason:  authz.ReasonSuperuser,
	})
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)

	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "alice", events[0].Subject)
	assert.Equal(t, "p", events[0].Schema)
	assert.Equal(t, OutcomeAllowed, events[0].Outcome)
	assert.Equal(t, "v1", events[0].SnapshotVersion)

	// The superuser override is explicit in the trail.
	assert.Equal(t, "p2", events[1].Schema)
	assert.Equal(t, string(authz.ReasonSuperuser), events[1].Reason)

	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestLogger_DeniedOutcome(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)

	l.Record(context.Background(),
		&authz.Request{Subject: "bob", Resource: "/x", Action: "GET"},
		&authz.Decision{Allowed: false, Reason: authz.ReasonExplicitDeny},
	)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, OutcomeDenied, event.Outcome)
	assert.Equal(t, string(authz.ReasonExplicitDeny), event.Reason)
}

func TestLogger_BadPath(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(filepath.Join(t.TempDir(), "missing", "audit.jsonl"))
	assert.Error(t, err)
}

func TestNoopLogger(t *testing.T) {
	t.Parallel()

	l := NewNoopLogger()
	l.Record(context.Background(), &authz.Request{Subject: "alice"}, &authz.Decision{})
	assert.NoError(t, l.Close())
}
