// Package vault implements the directory-addressed item store. An item's
// physical location directly is its lifecycle state: state folders are
// authoritative, the record header's state field is a cached copy that
// loses on mismatch. All mutation goes through atomic rename, so two
// processes sharing a replica never observe a half-moved item.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vinayprograms/tandem/item"
)

// Common errors.
var (
	// ErrMissing indicates the expected item is not at the expected
	// location. Consumers treat this as a valid outcome (the item was
	// reassigned elsewhere), not a failure.
	ErrMissing = errors.New("item not at expected location")

	// ErrExists indicates an item with this identity already exists
	// somewhere in the vault. Ingestion treats this as success.
	ErrExists = errors.New("item already exists")

	// ErrNotFound indicates the item does not exist anywhere in the vault.
	ErrNotFound = errors.New("item not found in vault")
)

// EnvelopeDir is the update merge queue folder, relative to the root.
const EnvelopeDir = "envelopes"

// AuditDir is the audit log folder, relative to the root.
const AuditDir = "audit"

// StatusFile is the shared status artifact, relative to the root.
const StatusFile = "status.md"

// Location identifies one state folder.
type Location struct {
	// State selects the top-level folder.
	State item.State

	// Agent subdivides the claimed/ and executing/ folders.
	Agent string

	// Domain subdivides the new/ folder.
	Domain item.Domain
}

// Dir returns the folder path relative to the vault root.
func (l Location) Dir() string {
	switch {
	case l.State == item.StateNew:
		d := l.Domain
		if d == "" {
			d = item.DomainShared
		}
		return filepath.Join(string(l.State), string(d))
	case l.State.AgentScoped():
		return filepath.Join(string(l.State), l.Agent)
	default:
		return string(l.State)
	}
}

// String renders the location for logs and audit records.
func (l Location) String() string {
	return filepath.ToSlash(l.Dir())
}

// Entry pairs an item ID with its current location.
type Entry struct {
	ID       string
	Location Location
}

// Vault is a handle on one replica's store directory.
type Vault struct {
	root string
}

// Open opens the store rooted at the given directory, creating the
// canonical layout if needed.
func Open(root string) (*Vault, error) {
	v := &Vault{root: root}
	dirs := []string{
		Location{State: item.StateNew, Domain: item.DomainPersonal}.Dir(),
		Location{State: item.StateNew, Domain: item.DomainBusiness}.Dir(),
		Location{State: item.StateNew, Domain: item.DomainShared}.Dir(),
		string(item.StateAwaitingTriage),
		string(item.StateAwaitingApproval),
		string(item.StateApproved),
		string(item.StateRejected),
		string(item.StateClaimed),
		string(item.StateExecuting),
		string(item.StateDone),
		string(item.StateFailed),
		EnvelopeDir,
		AuditDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			return nil, fmt.Errorf("creating vault layout: %w", err)
		}
	}
	return v, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// Path returns the absolute record path for an item at a location.
func (v *Vault) Path(id string, loc Location) string {
	return filepath.Join(v.root, loc.Dir(), id+".md")
}

// Create writes a new item record at the given location. If an item with
// the same ID already exists anywhere in the vault, Create returns
// ErrExists and changes nothing, making re-ingestion idempotent.
func (v *Vault) Create(it *item.Item, loc Location) error {
	if err := it.Validate(); err != nil {
		return err
	}
	if _, err := v.Locate(it.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, it.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	it.State = loc.State
	return v.write(it, loc)
}

// Load reads the item at the given location. The returned item's state
// is taken from the location, never from the cached header field.
func (v *Vault) Load(id string, loc Location) (*item.Item, error) {
	data, err := os.ReadFile(v.Path(id, loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s in %s", ErrMissing, id, loc)
		}
		return nil, err
	}
	it, err := item.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	// Folder membership is authoritative over the header state.
	it.State = loc.State
	return it, nil
}

// Get finds an item anywhere in the vault and returns it with its
// current location.
func (v *Vault) Get(id string) (*item.Item, Location, error) {
	loc, err := v.Locate(id)
	if err != nil {
		return nil, Location{}, err
	}
	it, err := v.Load(id, loc)
	if err != nil {
		return nil, Location{}, err
	}
	return it, loc, nil
}

// Locate scans the state folders for the item and returns its location.
// Returns ErrNotFound if the item is nowhere in the vault.
func (v *Vault) Locate(id string) (Location, error) {
	entries, err := v.Scan()
	if err != nil {
		return Location{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e.Location, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns the IDs of all items at the given location, sorted.
func (v *Vault) List(loc Location) ([]string, error) {
	dir := filepath.Join(v.root, loc.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Agents returns the agent subfolders present under an agent-scoped state.
func (v *Vault) Agents(state item.State) ([]string, error) {
	if !state.AgentScoped() {
		return nil, fmt.Errorf("state %s is not agent scoped", state)
	}
	entries, err := os.ReadDir(filepath.Join(v.root, string(state)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var agents []string
	for _, e := range entries {
		if e.IsDir() {
			agents = append(agents, e.Name())
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// Scan walks every state folder and returns all item entries. An item
// appearing in more than one folder (possible transiently after a merge)
// yields multiple entries; reconciliation resolves the duplication.
func (v *Vault) Scan() ([]Entry, error) {
	var out []Entry

	appendDir := func(loc Location) error {
		ids, err := v.List(loc)
		if err != nil {
			return err
		}
		for _, id := range ids {
			out = append(out, Entry{ID: id, Location: loc})
		}
		return nil
	}

	for _, d := range []item.Domain{item.DomainPersonal, item.DomainBusiness, item.DomainShared} {
		if err := appendDir(Location{State: item.StateNew, Domain: d}); err != nil {
			return nil, err
		}
	}
	for _, s := range []item.State{
		item.StateAwaitingTriage, item.StateAwaitingApproval, item.StateApproved,
		item.StateRejected, item.StateDone, item.StateFailed,
	} {
		if err := appendDir(Location{State: s}); err != nil {
			return nil, err
		}
	}
	for _, s := range []item.State{item.StateClaimed, item.StateExecuting} {
		agents, err := v.Agents(s)
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			if err := appendDir(Location{State: s, Agent: a}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Relocate atomically moves an item between state folders. This is the
// primitive every lifecycle transition rides on: rename is atomic on the
// local filesystem, so an observer sees the item in exactly one folder.
// Returns ErrMissing if the item is not at the source location.
func (v *Vault) Relocate(id string, from, to Location) error {
	src := v.Path(id, from)
	dst := v.Path(id, to)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s in %s", ErrMissing, id, from)
		}
		return err
	}
	return nil
}

// Update rewrites an item's record in place at the given location,
// via a temp file and rename so readers never see a partial record.
// Used to persist decision trail appends; the payload never changes.
func (v *Vault) Update(it *item.Item, loc Location) error {
	if _, err := os.Stat(v.Path(it.ID, loc)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s in %s", ErrMissing, it.ID, loc)
		}
		return err
	}
	it.State = loc.State
	return v.write(it, loc)
}

// Remove deletes an item record at the given location. Used only by
// reconciliation (discarding a conflict loser) and retention purge.
func (v *Vault) Remove(id string, loc Location) error {
	err := os.Remove(v.Path(id, loc))
	if err != nil && os.IsNotExist(err) {
		return fmt.Errorf("%w: %s in %s", ErrMissing, id, loc)
	}
	return err
}

// write encodes and atomically places a record file.
func (v *Vault) write(it *item.Item, loc Location) error {
	data, err := item.Encode(it)
	if err != nil {
		return err
	}
	dir := filepath.Join(v.root, loc.Dir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+it.ID+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, v.Path(it.ID, loc))
}
