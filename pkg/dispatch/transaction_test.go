package dispatch

import (
	"errors"
	"testing"
)

func rollbackObject(state *int, snapshot *int, fail bool) *ObjectDescriptor {
	return &ObjectDescriptor{
		OID: 42,
		Handlers: Handlers{
			TransactionBegin: func(oid uint16) error {
				*snapshot = *state
				return nil
			},
			TransactionValidate: func(oid uint16) error {
				if fail {
					return errors.New("validation rejected")
				}
				return nil
			},
			TransactionEnd: func(oid uint16, result int) {
				if result != 0 {
					*state = *snapshot
				}
			},
		},
	}
}

func TestTransaction_RollbackOnValidateFailure(t *testing.T) {
	r := NewRegistry()
	state, snapshot := 1, 0
	if err := r.Register(rollbackObject(&state, &snapshot, true)); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.RunMutation([]uint16{42}, func() error {
		state = 99 // simulate a handler mutating state before validation fails
		return nil
	})
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("got %v, want ErrTransactionFailed", err)
	}
	if state != 1 {
		t.Fatalf("state = %d, want rolled back to 1", state)
	}
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	r := NewRegistry()
	state, snapshot := 1, 0
	if err := r.Register(rollbackObject(&state, &snapshot, false)); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.RunMutation([]uint16{42}, func() error {
		state = 99
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != 99 {
		t.Fatalf("state = %d, want 99 (committed)", state)
	}
}

func TestTransaction_RollbackOnHandlerFailure(t *testing.T) {
	r := NewRegistry()
	state, snapshot := 1, 0
	if err := r.Register(rollbackObject(&state, &snapshot, false)); err != nil {
		t.Fatalf("register: %v", err)
	}

	handlerErr := errors.New("write failed")
	err := r.RunMutation([]uint16{42}, func() error {
		state = 99
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("got %v, want %v", err, handlerErr)
	}
	if state != 1 {
		t.Fatalf("state = %d, want rolled back to 1", state)
	}
}

func TestTransaction_ObjectWithoutHandlersIsNoOp(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&ObjectDescriptor{OID: 7}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.RunMutation([]uint16{7}, func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
