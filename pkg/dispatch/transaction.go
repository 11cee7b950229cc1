package dispatch

// Transaction drives the begin/validate/end boundary required around any
// mutating operation (WRITE_*, CREATE, DELETE, WRITE_ATTR; §4.4.3): every
// affected object gets transaction_begin before the first handler call;
// on success transaction_validate then transaction_end(0); on any
// handler failure transaction_end(nonzero), the object's cue to restore
// its cached state.
type Transaction struct {
	registry *Registry
	began    []uint16
}

// BeginTransaction calls TransactionBegin on every affected object that
// declares one. Objects without a TransactionBegin handler are treated as
// always-ready and are not tracked (there is nothing to roll back).
func (r *Registry) BeginTransaction(oids []uint16) (*Transaction, error) {
	tx := &Transaction{registry: r}
	for _, oid := range oids {
		obj, ok := r.Object(oid)
		if !ok {
			tx.End(ErrObjectNotFound)
			return nil, ErrObjectNotFound
		}
		if obj.Handlers.TransactionBegin == nil {
			continue
		}
		if err := obj.Handlers.TransactionBegin(oid); err != nil {
			tx.End(err)
			return nil, err
		}
		tx.began = append(tx.began, oid)
	}
	return tx, nil
}

// Validate calls TransactionValidate on every object that began a
// transaction. The first failure aborts validation of the remaining
// objects; the caller should still call End with the returned error.
func (tx *Transaction) Validate() error {
	for _, oid := range tx.began {
		obj, ok := tx.registry.Object(oid)
		if !ok {
			continue
		}
		if obj.Handlers.TransactionValidate == nil {
			continue
		}
		if err := obj.Handlers.TransactionValidate(oid); err != nil {
			return ErrTransactionFailed
		}
	}
	return nil
}

// End calls TransactionEnd(result) on every object that began a
// transaction, with result 0 on success (err == nil) or nonzero
// otherwise. Safe to call once, unconditionally, regardless of how far
// the transaction progressed.
func (tx *Transaction) End(err error) {
	result := 0
	if err != nil {
		result = 1
	}
	for _, oid := range tx.began {
		obj, ok := tx.registry.Object(oid)
		if !ok || obj.Handlers.TransactionEnd == nil {
			continue
		}
		obj.Handlers.TransactionEnd(oid, result)
	}
}

// RunMutation begins a transaction over oids, runs fn, validates on
// success, and always ends the transaction with the final outcome.
// WriteComposite and the client's DELETE handling run their mutations
// through it, so both get the begin/validate/end bracketing of §4.4.3.
func (r *Registry) RunMutation(oids []uint16, fn func() error) error {
	tx, err := r.BeginTransaction(oids)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		tx.End(err)
		return err
	}
	if err := tx.Validate(); err != nil {
		tx.End(err)
		return err
	}
	tx.End(nil)
	return nil
}
