package vault

import (
	"github.com/vinayprograms/tandem/item"
)

// Advance performs one lifecycle transition end to end: load the record,
// check the edge against the legal table, atomically relocate the file,
// then persist the appended decision trail entry at the destination.
//
// The relocation happens before the record rewrite: the rename is the
// atomic commit point, and a crash after it leaves a correctly placed
// item whose trail is one entry short, which the next pass repairs by
// observing location over header state.
func (v *Vault) Advance(id string, from, to Location, actor, rationale string) (*item.Item, error) {
	it, err := v.Load(id, from)
	if err != nil {
		return nil, err
	}
	if err := it.Transition(to.State, actor, rationale); err != nil {
		return nil, err
	}
	if err := v.Relocate(id, from, to); err != nil {
		return nil, err
	}
	if err := v.Update(it, to); err != nil {
		return nil, err
	}
	return it, nil
}
