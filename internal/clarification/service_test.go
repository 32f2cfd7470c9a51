package clarification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

type fakeStore struct {
	mu       sync.Mutex
	slots    map[string][]byte
	readErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: make(map[string][]byte)}
}

func (f *fakeStore) SetPendingClarification(_ context.Context, userID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.slots[userID] = payload
	return nil
}

func (f *fakeStore) GetPendingClarification(_ context.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.slots[userID], nil
}

func (f *fakeStore) ClearPendingClarification(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.slots, userID)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store PendingStore) *Service {
	return NewService(ambiguity.NewDefaultDetector(), store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedNow }),
	)
}

var (
	sizeStandard = ambiguity.SizeAmbiguity{Term: "standard", Confidence: 0.8, Suggestion: "36x48", Prompt: "Is 36x48 your size?"}
	opStandard   = ambiguity.OperationAmbiguity{Term: "standard", Confidence: 0.6, Options: []string{"hung", "slider", "casement", "awning", "fixed"}, Prompt: "How should it open?"}
	glassDefault = ambiguity.GlassAmbiguity{NamedDefault: ambiguity.NamedDefault{
		Term: "energy efficient", Confidence: 0.8, DefaultName: "double pane with Low-E",
		Fields: specification.Specification{"pane_count": 2, "has_low_e": true}, Prompt: "Double pane with Low-E?",
	}}
	grilleDefault = ambiguity.GrilleAmbiguity{NamedDefault: ambiguity.NamedDefault{
		Term: "grids", Confidence: 0.9, DefaultName: "colonial grilles",
		Fields: specification.Specification{"has_grilles": true}, Prompt: "Colonial grilles?",
	}}
)

func TestGenerateClarificationRequest(t *testing.T) {
	svc := newTestService(newFakeStore())

	t.Run("operation beats size regardless of confidence", func(t *testing.T) {
		req := svc.GenerateClarificationRequest([]ambiguity.Ambiguity{sizeStandard, opStandard}, nil)
		require.NotNil(t, req)
		assert.Equal(t, ambiguity.CategoryOperation, req.Ambiguity.Category())
	})

	t.Run("glass beats grilles", func(t *testing.T) {
		req := svc.GenerateClarificationRequest([]ambiguity.Ambiguity{grilleDefault, glassDefault}, nil)
		require.NotNil(t, req)
		assert.Equal(t, ambiguity.CategoryGlass, req.Ambiguity.Category())
	})

	t.Run("confidence breaks ties", func(t *testing.T) {
		big := ambiguity.SizeAmbiguity{Term: "big", Confidence: 0.65, Suggestion: "48x60"}
		large := ambiguity.SizeAmbiguity{Term: "large", Confidence: 0.7, Suggestion: "48x60"}
		req := svc.GenerateClarificationRequest([]ambiguity.Ambiguity{big, large}, nil)
		require.NotNil(t, req)
		assert.Equal(t, "large", req.Ambiguity.MatchedTerm())
	})

	t.Run("prompt mentions what is known", func(t *testing.T) {
		req := svc.GenerateClarificationRequest([]ambiguity.Ambiguity{glassDefault}, specification.Specification{
			"width": 36, "height": 48, "operation": "casement",
		})
		require.NotNil(t, req)
		assert.Equal(t, `For your 36" x 48" casement window, double pane with Low-E?`, req.Prompt)
	})

	t.Run("empty or malformed input", func(t *testing.T) {
		assert.Nil(t, svc.GenerateClarificationRequest(nil, nil))
		assert.Nil(t, svc.GenerateClarificationRequest([]ambiguity.Ambiguity{
			ambiguity.SizeAmbiguity{Term: "standard"},
			ambiguity.OperationAmbiguity{},
			nil,
		}, nil))
	})
}

func TestPendingClarification_Storage(t *testing.T) {
	ctx := context.Background()

	t.Run("save, get, clear", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		saved, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: glassDefault}, specification.Specification{"quantity": 3})
		require.NoError(t, err)

		got := svc.GetPendingClarification(ctx, "u1")
		require.NotNil(t, got)
		assert.Equal(t, saved.ID, got.ID)
		assert.Equal(t, glassDefault, got.Ambiguity)
		assert.Equal(t, fixedNow, got.CreatedAt)
		assert.Equal(t, specification.Specification{"quantity": 3}, got.DeferredFields)

		require.NoError(t, svc.ClearPendingClarification(ctx, "u1"))
		assert.Nil(t, svc.GetPendingClarification(ctx, "u1"))
	})

	t.Run("second save is refused", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: sizeStandard}, nil)
		require.NoError(t, err)

		_, err = svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: opStandard}, nil)
		assert.ErrorIs(t, err, ErrClarificationPending)
		assert.Equal(t, sizeStandard, svc.GetPendingClarification(ctx, "u1").Ambiguity)
	})

	t.Run("read failure degrades to none", func(t *testing.T) {
		store := newFakeStore()
		store.readErr = errors.New("connection reset")
		svc := newTestService(store)
		assert.Nil(t, svc.GetPendingClarification(ctx, "u1"))
	})

	t.Run("unreadable payload is discarded", func(t *testing.T) {
		store := newFakeStore()
		store.slots["u1"] = []byte(`{"category":"material","ambiguity":{}}`)
		svc := newTestService(store)
		assert.Nil(t, svc.GetPendingClarification(ctx, "u1"))
		assert.NotContains(t, store.slots, "u1")
	})

	t.Run("abandon returns deferred fields", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		saved, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: grilleDefault}, specification.Specification{"frame_color": "black"})
		require.NoError(t, err)

		deferred, err := svc.AbandonPendingClarification(ctx, "u1", saved)
		require.NoError(t, err)
		assert.Equal(t, specification.Specification{"frame_color": "black"}, deferred)
		assert.Nil(t, svc.GetPendingClarification(ctx, "u1"))

		_, err = svc.AbandonPendingClarification(ctx, "u1", nil)
		assert.ErrorIs(t, err, ErrNoClarification)
	})

	t.Run("write failure is returned", func(t *testing.T) {
		store := newFakeStore()
		store.writeErr = errors.New("disk full")
		svc := newTestService(store)
		_, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: sizeStandard}, nil)
		assert.Error(t, err)
	})
}

func TestPendingClarification_JSON(t *testing.T) {
	for _, a := range []ambiguity.Ambiguity{sizeStandard, opStandard, glassDefault, grilleDefault} {
		t.Run(string(a.Category()), func(t *testing.T) {
			in := PendingClarification{Ambiguity: a, CreatedAt: fixedNow, Attempts: 1}
			data, err := json.Marshal(in)
			require.NoError(t, err)

			var out PendingClarification
			require.NoError(t, json.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}

	t.Run("missing ambiguity", func(t *testing.T) {
		_, err := json.Marshal(PendingClarification{})
		assert.Error(t, err)
	})
}

func TestProcessUserClarification(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, a ambiguity.Ambiguity, deferred specification.Specification) (*Service, *fakeStore, *PendingClarification) {
		t.Helper()
		store := newFakeStore()
		svc := newTestService(store)
		pending, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: a}, deferred)
		require.NoError(t, err)
		return svc, store, pending
	}

	t.Run("resolved size merges and clears", func(t *testing.T) {
		svc, store, pending := setup(t, sizeStandard, specification.Specification{"quantity": 2})
		res, err := svc.ProcessUserClarification(ctx, "u1", "yes that's right", pending, specification.Specification{"operation": "hung"})
		require.NoError(t, err)

		assert.Equal(t, StatusResolved, res.Status)
		assert.True(t, res.Continue())
		assert.True(t, res.Closed())
		assert.Equal(t, specification.Specification{"operation": "hung", "width": 36, "height": 48, "quantity": 2}, res.Spec)
		assert.Contains(t, res.Message, `36" x 48"`)
		assert.Empty(t, store.slots)
	})

	t.Run("help keeps pending", func(t *testing.T) {
		svc, store, pending := setup(t, opStandard, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "what's the difference between casement and awning?", pending, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusHelp, res.Status)
		assert.False(t, res.Closed())
		assert.Contains(t, res.Message, "Casements crank outward")
		assert.Contains(t, store.slots, "u1")
	})

	t.Run("uncertainty skips and leaves spec unchanged", func(t *testing.T) {
		svc, store, pending := setup(t, sizeStandard, nil)
		spec := specification.Specification{"operation": "hung"}
		res, err := svc.ProcessUserClarification(ctx, "u1", "no idea", pending, spec)
		require.NoError(t, err)

		assert.Equal(t, StatusSkipped, res.Status)
		assert.True(t, res.Continue())
		assert.Equal(t, spec, res.Spec)
		assert.Empty(t, store.slots)
	})

	t.Run("two labelled numbers", func(t *testing.T) {
		svc, _, pending := setup(t, sizeStandard, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "width 30 and height 40", pending, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusResolved, res.Status)
		assert.Equal(t, 30, res.Spec["width"])
		assert.Equal(t, 40, res.Spec["height"])
	})

	t.Run("unreadable reply is re-asked shorter", func(t *testing.T) {
		svc, store, pending := setup(t, opStandard, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "hmm", pending, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusRetry, res.Status)
		assert.Equal(t, "Which style would you like: hung, slider, casement, awning, fixed?", res.Message)
		require.NotNil(t, res.Pending)
		assert.Equal(t, 1, res.Pending.Attempts)
		assert.Equal(t, 1, svc.GetPendingClarification(ctx, "u1").Attempts)
		assert.Contains(t, store.slots, "u1")
	})

	t.Run("single dimension asks for the other", func(t *testing.T) {
		svc, _, pending := setup(t, sizeStandard, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "it's 40 wide", pending, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusFollowUp, res.Status)
		assert.Contains(t, res.Message, "height")

		next := svc.GetPendingClarification(ctx, "u1")
		require.NotNil(t, next)
		res, err = svc.ProcessUserClarification(ctx, "u1", "52", next, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusResolved, res.Status)
		assert.Equal(t, specification.Specification{"width": 40, "height": 52}, res.Spec)
	})

	t.Run("height given first", func(t *testing.T) {
		svc, _, pending := setup(t, sizeStandard, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "60 tall", pending, nil)
		require.NoError(t, err)
		assert.Contains(t, res.Message, "width")

		res, err = svc.ProcessUserClarification(ctx, "u1", "30", svc.GetPendingClarification(ctx, "u1"), nil)
		require.NoError(t, err)
		assert.Equal(t, specification.Specification{"width": 30, "height": 60}, res.Spec)
	})

	t.Run("rejected default asks for an alternative", func(t *testing.T) {
		svc, store, pending := setup(t, glassDefault, specification.Specification{"quantity": 4})
		res, err := svc.ProcessUserClarification(ctx, "u1", "no thanks", pending, nil)
		require.NoError(t, err)

		assert.Equal(t, StatusAlternative, res.Status)
		assert.True(t, res.Closed())
		assert.False(t, res.Continue())
		assert.Equal(t, specification.Specification{"quantity": 4}, res.Spec)
		assert.Empty(t, store.slots)
	})

	t.Run("accepted default merges the bundle", func(t *testing.T) {
		svc, _, pending := setup(t, glassDefault, nil)
		res, err := svc.ProcessUserClarification(ctx, "u1", "sounds good", pending, nil)
		require.NoError(t, err)
		assert.Equal(t, specification.Specification{"pane_count": 2, "has_low_e": true}, res.Spec)
		assert.Contains(t, res.Message, "double pane with Low-E")
	})

	t.Run("store failure is returned", func(t *testing.T) {
		svc, store, pending := setup(t, opStandard, nil)
		store.writeErr = errors.New("timeout")
		_, err := svc.ProcessUserClarification(ctx, "u1", "casement", pending, nil)
		assert.Error(t, err)
	})

	t.Run("nothing pending", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.ProcessUserClarification(ctx, "u1", "yes", nil, nil)
		assert.ErrorIs(t, err, ErrNoClarification)
	})
}

func TestResolveFromFields(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		amb      ambiguity.Ambiguity
		partial  specification.Specification
		fields   specification.Specification
		resolved bool
		want     specification.Specification
	}{
		{
			name:     "both dimensions settle a size",
			amb:      sizeStandard,
			fields:   specification.Specification{"width": 36, "height": 48, "quantity": 2},
			resolved: true,
			want:     specification.Specification{"width": 36, "height": 48, "frame_color": "black"},
		},
		{
			name:     "second dimension completes an earlier half answer",
			amb:      sizeStandard,
			partial:  specification.Specification{"width": 30},
			fields:   specification.Specification{"height": 60},
			resolved: true,
			want:     specification.Specification{"width": 30, "height": 60, "frame_color": "black"},
		},
		{
			name:   "one dimension is not enough",
			amb:    sizeStandard,
			fields: specification.Specification{"width": 36},
		},
		{
			name:     "operation field settles an operation",
			amb:      opStandard,
			fields:   specification.Specification{"operation": "awning"},
			resolved: true,
			want:     specification.Specification{"operation": "awning", "frame_color": "black"},
		},
		{
			name:     "any glass field settles glass",
			amb:      glassDefault,
			fields:   specification.Specification{"pane_count": 3},
			resolved: true,
			want:     specification.Specification{"pane_count": 3, "frame_color": "black"},
		},
		{
			name:   "fields for other topics leave it open",
			amb:    grilleDefault,
			fields: specification.Specification{"quantity": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeStore())
			saved, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: tt.amb}, specification.Specification{"frame_color": "black"})
			require.NoError(t, err)
			saved.PartialFields = tt.partial

			res, ok, err := svc.ResolveFromFields(ctx, "u1", saved, specification.Specification{}, tt.fields)
			require.NoError(t, err)
			assert.Equal(t, tt.resolved, ok)
			if !tt.resolved {
				assert.NotNil(t, svc.GetPendingClarification(ctx, "u1"))
				return
			}
			assert.Equal(t, StatusResolved, res.Status)
			assert.True(t, res.Closed())
			assert.Equal(t, tt.want, res.Fields)
			assert.Nil(t, svc.GetPendingClarification(ctx, "u1"))
		})
	}

	t.Run("nothing pending", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, _, err := svc.ResolveFromFields(ctx, "u1", nil, nil, specification.Specification{"width": 1})
		assert.ErrorIs(t, err, ErrNoClarification)
	})
}

func TestDeferFields(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())
	saved, err := svc.SavePendingClarification(ctx, "u1", &Request{Ambiguity: sizeStandard}, specification.Specification{"operation": "casement"})
	require.NoError(t, err)

	next, err := svc.DeferFields(ctx, "u1", saved, specification.Specification{"quantity": 3, "width": 30})
	require.NoError(t, err)
	assert.Equal(t, specification.Specification{"operation": "casement", "quantity": 3}, next.DeferredFields)
	assert.Equal(t, specification.Specification{"width": 30}, next.PartialFields)

	stored := svc.GetPendingClarification(ctx, "u1")
	require.NotNil(t, stored)
	assert.EqualValues(t, 3, stored.DeferredFields["quantity"])
	assert.EqualValues(t, 30, stored.PartialFields["width"])

	res, err := svc.ProcessUserClarification(ctx, "u1", "48", stored, specification.Specification{})
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.EqualValues(t, 30, res.Fields["width"])
	assert.EqualValues(t, 48, res.Fields["height"])
	assert.EqualValues(t, 3, res.Fields["quantity"])

	t.Run("no fields leaves the record alone", func(t *testing.T) {
		same, err := svc.DeferFields(ctx, "u2", saved, nil)
		require.NoError(t, err)
		assert.Same(t, saved, same)
	})
}

func TestLifecycle(t *testing.T) {
	l, err := NewLifecycle("u1", false)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, l.Current())

	assert.ErrorIs(t, l.Transition(EventResolve), ErrNoClarification)
	require.NoError(t, l.Transition(EventAsk))
	assert.True(t, l.Awaiting())
	assert.ErrorIs(t, l.Transition(EventAsk), ErrClarificationPending)

	for _, event := range []string{EventResolve, EventSkip, EventAbandon} {
		l, err := NewLifecycle("u1", true)
		require.NoError(t, err)
		require.NoError(t, l.Transition(event), event)
		assert.Equal(t, StateIdle, l.Current())
	}
}
