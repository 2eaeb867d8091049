package store

import "fmt"

// TxnStatus is the state of a tuple relative to the active write
// transaction.
type TxnStatus uint8

const (
	// Neutral: committed and untouched by the transaction.
	Neutral TxnStatus = iota
	// New: added by the transaction.
	New
	// Deprecated: committed, removed by the transaction.
	Deprecated
	// Explicit: committed as inferred, explicitly asserted by the transaction.
	Explicit
	// Inferred: committed as explicit, the explicit assertion was removed
	// but the statement is still derived.
	Inferred
	// Zombie: added and removed within the transaction.
	Zombie
)

func (s TxnStatus) String() string {
	switch s {
	case Neutral:
		return "NEUTRAL"
	case New:
		return "NEW"
	case Deprecated:
		return "DEPRECATED"
	case Explicit:
		return "EXPLICIT"
	case Inferred:
		return "INFERRED"
	case Zombie:
		return "ZOMBIE"
	}
	return fmt.Sprintf("TxnStatus(%d)", uint8(s))
}

// visibleInTxn reports whether the transaction owner sees the tuple.
func (s TxnStatus) visibleInTxn() bool {
	return s == Neutral || s == New || s == Explicit || s == Inferred
}

// txnOp is a mutation applied to an existing tuple.
type txnOp uint8

const (
	opAddExplicit txnOp = iota
	opAddInferred
	opRemoveExplicit
	opRemoveInferred
)

func (op txnOp) String() string {
	return [...]string{"add-explicit", "add-inferred", "remove-explicit", "remove-inferred"}[op]
}

// flag says what a transition does to a tuple's provenance bit. Only
// uncommitted (New) tuples have their bit rewritten in place.
type flag int8

const (
	keepFlag flag = iota
	setExplicit
	setInferred
)

type transitionKey struct {
	from     TxnStatus
	explicit bool
	op       txnOp
}

type transition struct {
	to   TxnStatus
	flag flag
}

// transitions is the tuple state machine. The key's explicit field is the
// tuple's provenance bit (committed provenance, or the provenance a New
// tuple was added with). Pairs missing from the table leave the tuple
// unchanged and report no change.
var transitions = map[transitionKey]transition{
	{Neutral, true, opRemoveExplicit}:  {to: Deprecated},
	{Neutral, false, opAddExplicit}:    {to: Explicit},
	{Neutral, false, opRemoveInferred}: {to: Deprecated},

	{New, true, opRemoveExplicit}:  {to: Zombie},
	{New, false, opAddExplicit}:    {to: New, flag: setExplicit},
	{New, false, opRemoveInferred}: {to: Zombie},

	{Deprecated, true, opAddExplicit}:  {to: Neutral},
	{Deprecated, true, opAddInferred}:  {to: Inferred},
	{Deprecated, false, opAddExplicit}: {to: Explicit},
	{Deprecated, false, opAddInferred}: {to: Neutral},

	{Explicit, false, opRemoveExplicit}: {to: Inferred},

	{Inferred, true, opAddExplicit}:     {to: Neutral},
	{Inferred, true, opRemoveInferred}:  {to: Deprecated},
	{Inferred, false, opAddExplicit}:    {to: Explicit},
	{Inferred, false, opRemoveInferred}: {to: Deprecated},

	{Zombie, true, opAddExplicit}:  {to: New},
	{Zombie, true, opAddInferred}:  {to: New, flag: setInferred},
	{Zombie, false, opAddExplicit}: {to: New, flag: setExplicit},
	{Zombie, false, opAddInferred}: {to: New},
}

// nextStatus looks up the transition for (from, explicit, op).
func nextStatus(from TxnStatus, explicit bool, op txnOp) (transition, bool) {
	t, ok := transitions[transitionKey{from, explicit, op}]
	return t, ok
}

// explicitInTxn is the provenance the transaction owner observes.
func explicitInTxn(status TxnStatus, explicit bool) bool {
	switch status {
	case Explicit:
		return true
	case Inferred:
		return false
	}
	return explicit
}
