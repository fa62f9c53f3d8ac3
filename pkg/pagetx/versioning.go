package pagetx

import (
	"sort"

	"stratadb/pkg/page"
	"stratadb/pkg/record"
)

// dirtyLeaf is one indirection-tree leaf a write transaction has cloned
// into its working set: the full current logical view (folded forward
// from any existing fragment chain by prepareLeaf), which keys this
// transaction actually touched, and enough of the leaf's prior identity
// to build the next commit's fragment chain under a non-Full algorithm.
type dirtyLeaf struct {
	kind    page.PageKind
	entries map[string]*record.Record // nil value = tombstoned this txn
	touched map[string]bool

	hadOriginal      bool
	originalFragment page.Fragment   // this leaf's own pre-transaction physical location
	priorChain       []page.Fragment // that leaf's own PriorFragments, oldest-reachable last

	// base is the Differential base snapshot's content, used to compute
	// a cumulative diff at commit time. Only set when hadOriginal and the
	// index's policy is Differential.
	base map[string]*record.Record
}

// differentialBaseFromRaw returns the content of the fixed base snapshot
// a Differential leaf diffs against: the leaf's own entries if it has no
// PriorFragments yet (it is still the base itself), otherwise the oldest
// fragment in its chain (Differential retains exactly one, the base).
func (tx *WriteTrx) differentialBaseFromRaw(rawLeaf *page.LeafPage, policy VersioningPolicy) (map[string]*record.Record, error) {
	if len(rawLeaf.PriorFragments) == 0 {
		return entriesMap(rawLeaf), nil
	}
	chain, err := tx.fragmentChain(rawLeaf, policy)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return entriesMap(rawLeaf), nil
	}
	return entriesMap(chain[0]), nil
}

// buildCommittedLeaf decides, per the index's versioning algorithm,
// whether this commit writes a self-contained full leaf or a delta
// chained to older fragments (spec §4.3 "Versioning algorithms").
func buildCommittedLeaf(dl *dirtyLeaf, policy VersioningPolicy) *page.LeafPage {
	full := func() *page.LeafPage {
		return page.NewLeafPage(dl.kind, sortedEntries(dl.entries))
	}
	if !dl.hadOriginal {
		return full()
	}

	switch policy.Algorithm {
	case Full:
		return full()

	case Incremental:
		chain := append([]page.Fragment{dl.originalFragment}, dl.priorChain...)
		bound := policy.RevisionsToRestore
		if bound <= 0 {
			bound = 3
		}
		if len(chain) > bound {
			// Periodic full snapshot: the chain has grown past the
			// restore bound, so this commit resets it.
			return full()
		}
		return page.NewDeltaLeafPage(dl.kind, touchedEntries(dl), chain)

	case Differential:
		// Exactly one fragment is ever retained: the creation-time base.
		baseFragment := dl.originalFragment
		if len(dl.priorChain) > 0 {
			baseFragment = dl.priorChain[len(dl.priorChain)-1]
		}
		return page.NewDeltaLeafPage(dl.kind, diffAgainstBase(dl), []page.Fragment{baseFragment})

	case SlidingSnapshot:
		chain := append([]page.Fragment{dl.originalFragment}, dl.priorChain...)
		window := policy.Window
		if window <= 0 {
			window = policy.RevisionsToRestore
		}
		if window <= 0 {
			window = 3
		}
		if len(chain) > window {
			return full()
		}
		return page.NewDeltaLeafPage(dl.kind, touchedEntries(dl), chain)

	default:
		return full()
	}
}

// touchedEntries returns the entries this transaction actually created,
// modified or removed, as a delta leaf's Entries (a nil Value is a
// tombstone, per assembleLeaf's read-side handling).
func touchedEntries(dl *dirtyLeaf) []page.LeafEntry {
	out := make([]page.LeafEntry, 0, len(dl.touched))
	for k := range dl.touched {
		out = append(out, page.LeafEntry{Key: []byte(k), Value: dl.entries[k]})
	}
	sort.Slice(out, func(i, j int) bool { return bytesLess(out[i].Key, out[j].Key) })
	return out
}

// sortedEntries returns every live entry for a self-contained full leaf.
// A full leaf never carries tombstones: a tombstoned key is simply absent.
func sortedEntries(entries map[string]*record.Record) []page.LeafEntry {
	out := make([]page.LeafEntry, 0, len(entries))
	for k, v := range entries {
		if v == nil {
			continue
		}
		out = append(out, page.LeafEntry{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return bytesLess(out[i].Key, out[j].Key) })
	return out
}

// diffAgainstBase computes the cumulative delta a Differential leaf's
// single diff fragment must carry: every key whose current value differs
// from (or is absent from) the base, plus a tombstone for every base key
// no longer present at all — regardless of which past commit changed it,
// since Differential never chains more than base+one diff.
func diffAgainstBase(dl *dirtyLeaf) []page.LeafEntry {
	out := make([]page.LeafEntry, 0, len(dl.entries))
	seen := make(map[string]bool, len(dl.entries))
	for k, cur := range dl.entries {
		seen[k] = true
		base, inBase := dl.base[k]
		if cur == nil {
			if inBase {
				out = append(out, page.LeafEntry{Key: []byte(k)})
			}
			continue
		}
		if !inBase || !recordBytesEqual(base, cur) {
			out = append(out, page.LeafEntry{Key: []byte(k), Value: cur})
		}
	}
	for k := range dl.base {
		if !seen[k] {
			out = append(out, page.LeafEntry{Key: []byte(k)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytesLess(out[i].Key, out[j].Key) })
	return out
}

func recordBytesEqual(a, b *record.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytesEqual(a.Encode(), b.Encode())
}

func entriesMap(leaf *page.LeafPage) map[string]*record.Record {
	m := make(map[string]*record.Record, len(leaf.Entries))
	for _, e := range leaf.Entries {
		m[string(e.Key)] = e.Value
	}
	return m
}
