package protocol

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// BridgeIDGenerator mints opaque identity tokens for protocol instances.
// The engine treats protocols as opaque variants identified by bridge id;
// the id never influences dispatch, only reporting and correlation.
//
// Implemented by UUIDv7Generator (production) and
// testutil.FixedBridgeGenerator (tests).
type BridgeIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 bridge ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, making ids
// sortable by creation time, which keeps multi-run log output legible.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Instance binds a protocol implementation to its bridge id.
type Instance struct {
	BridgeID string
	Impl     Protocol
}

// Pair is a matched sender/receiver protocol pairing as loaded from the
// builtin registry or a language bridge.
type Pair struct {
	Name     string
	Sender   Instance
	Receiver Instance
}

// Factory constructs a fresh sender/receiver implementation pair. Each
// call must return new instances: protocol state is per-run.
type Factory func() (sender, receiver Protocol)

// builtins maps protocol names to factories. Populated by the reference
// protocol packages via Register at init time.
var builtins = map[string]Factory{}

// Register adds a named factory to the builtin registry. Registering a
// duplicate name panics; this runs at init time where a duplicate is a
// programming error, not a runtime condition.
func Register(name string, f Factory) {
	if _, dup := builtins[name]; dup {
		panic(fmt.Sprintf("protocol: duplicate registration of %q", name))
	}
	builtins[name] = f
}

// LoadError reports that a protocol pairing could not be materialized.
// Surfaced before engine start; maps to the protocol-load exit code.
type LoadError struct {
	Name string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unknown protocol %q (available: %v)", e.Name, Names())
}

// Load materializes a fresh pair for the named builtin protocol, stamping
// both instances with bridge ids from gen.
func Load(name string, gen BridgeIDGenerator) (Pair, error) {
	f, ok := builtins[name]
	if !ok {
		return Pair{}, &LoadError{Name: name}
	}
	sender, receiver := f()
	return Pair{
		Name:     name,
		Sender:   Instance{BridgeID: gen.Generate(), Impl: sender},
		Receiver: Instance{BridgeID: gen.Generate(), Impl: receiver},
	}, nil
}

// Names returns the registered protocol names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
