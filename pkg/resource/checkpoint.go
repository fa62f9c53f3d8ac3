package resource

import (
	"fmt"

	"go.uber.org/zap"

	"stratadb/pkg/errs"
	"stratadb/pkg/hot"
	"stratadb/pkg/page"
)

// CheckpointStats reports a Checkpoint pass's reachability sweep: how
// many bytes of the backing store are still part of the currently
// committed revision's graph, and how many bytes are garbage left over
// from superseded commits.
type CheckpointStats struct {
	TotalBytes       int64
	ReachableBytes   int64
	ReclaimableBytes int64
}

// Checkpoint walks every page reachable from the resource's current uber
// reference — the document and name indirection trees (including each
// leaf's own retained fragment chain), the three HOT trees, and the path
// summary — and reports how much of the store is live versus reclaimable
// garbage (spec §4.3's commit failure note that "already-written blocks
// become garbage to be reclaimed later" without naming the reclaimer;
// supplemented here, grounded on teacher pager.Freelist's role as the
// reusable-space tracker).
//
// Because this store keeps only the latest committed RevisionRootPage —
// WriteUberRef overwrites the single header slot on every commit, with
// no chain back to earlier roots — everything NOT reachable from that
// one root is, by construction, safe to reclaim: there is no older
// revision a concurrent reader could still be pinned to once a new
// commit has landed (spec §6 excludes cross-resource/multi-writer
// concurrency). Physically rewriting a compacted store from the
// reachable set is a natural next step this pass does not take; it
// reports the sweep so a caller can decide whether compaction is worth
// the I/O.
func (r *Resource) Checkpoint() (CheckpointStats, error) {
	stats := CheckpointStats{TotalBytes: r.store.Size()}

	uberRef, err := r.store.ReadUberRef()
	if err != nil {
		return stats, err
	}
	if uberRef.IsZero() {
		return stats, nil
	}

	seen := make(map[int64]int)
	_, decoded, first, err := r.markRaw(uberRef.Offset, seen)
	if err != nil {
		return stats, err
	}
	if first {
		uber, err := page.DecodeUberPage(decoded)
		if err != nil {
			return stats, err
		}
		if err := r.markRoot(uber.RevisionRoot, seen); err != nil {
			return stats, err
		}
	}

	for _, n := range seen {
		stats.ReachableBytes += int64(n)
	}
	if stats.TotalBytes > stats.ReachableBytes {
		stats.ReclaimableBytes = stats.TotalBytes - stats.ReachableBytes
	}

	r.logger.Info("checkpoint",
		zap.Int64("total_bytes", stats.TotalBytes),
		zap.Int64("reachable_bytes", stats.ReachableBytes),
		zap.Int64("reclaimable_bytes", stats.ReclaimableBytes),
	)
	return stats, nil
}

// markRaw reads and pipeline-decodes the block at offset, marking it
// reachable at its on-disk (pipeline-encoded) length. first reports
// whether this is the block's first visit this sweep, so callers that
// recurse into children only do so once per offset.
func (r *Resource) markRaw(offset int64, seen map[int64]int) (raw, decoded []byte, first bool, err error) {
	if _, ok := seen[offset]; ok {
		return nil, nil, false, nil
	}
	raw, err = r.store.ReadPageAt(offset)
	if err != nil {
		return nil, nil, false, err
	}
	seen[offset] = len(raw)
	if r.pipeline == nil {
		return raw, raw, true, nil
	}
	decoded, err = r.pipeline.Decode(raw)
	if err != nil {
		return nil, nil, false, err
	}
	return raw, decoded, true, nil
}

// markOnly marks offset reachable without decoding it, for leaf prior
// fragments this sweep never needs to descend into further.
func (r *Resource) markOnly(offset int64, seen map[int64]int) error {
	if offset == 0 {
		return nil
	}
	if _, ok := seen[offset]; ok {
		return nil
	}
	raw, err := r.store.ReadPageAt(offset)
	if err != nil {
		return err
	}
	seen[offset] = len(raw)
	return nil
}

func (r *Resource) markRoot(ref page.PageRef, seen map[int64]int) error {
	if ref.Offset() == 0 {
		return nil
	}
	_, decoded, first, err := r.markRaw(ref.Offset(), seen)
	if err != nil || !first {
		return err
	}
	root, err := page.DecodeRevisionRootPage(decoded)
	if err != nil {
		return err
	}
	if err := r.markIndirect(root.DocumentIndex, seen); err != nil {
		return err
	}
	if err := r.markIndirect(root.NameDict, seen); err != nil {
		return err
	}
	if err := r.markHOT(root.NameIndex, seen); err != nil {
		return err
	}
	if err := r.markHOT(root.PathIndex, seen); err != nil {
		return err
	}
	if err := r.markHOT(root.CASIndex, seen); err != nil {
		return err
	}
	return r.markPathSummary(root.PathSummary.Offset(), seen)
}

func (r *Resource) markIndirect(ref page.PageRef, seen map[int64]int) error {
	if ref.Offset() == 0 {
		return nil
	}
	_, decoded, first, err := r.markRaw(ref.Offset(), seen)
	if err != nil || !first {
		return err
	}
	ip, err := page.DecodeIndirectPage(decoded)
	if err != nil {
		return err
	}
	for _, child := range ip.Children {
		if err := r.markLeaf(child, seen); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resource) markLeaf(ref page.PageRef, seen map[int64]int) error {
	if ref.Offset() == 0 {
		return nil
	}
	_, decoded, first, err := r.markRaw(ref.Offset(), seen)
	if err != nil || !first {
		return err
	}
	leaf, err := page.DecodeLeafPage(decoded)
	if err != nil {
		return err
	}
	for _, f := range leaf.PriorFragments {
		if err := r.markOnly(f.Offset, seen); err != nil {
			return err
		}
	}
	return nil
}

// markHOT recurses through a HOT tree's indirect/leaf nodes, dispatching
// on the leading page.PageKind byte the same way pkg/hot's own internal
// decodeNode does (that dispatch itself is unexported, but the two node
// decoders and the kind tag it switches on both are).
func (r *Resource) markHOT(ref page.PageRef, seen map[int64]int) error {
	if ref.Offset() == 0 {
		return nil
	}
	_, decoded, first, err := r.markRaw(ref.Offset(), seen)
	if err != nil || !first {
		return err
	}
	if len(decoded) == 0 {
		return errs.WrapCorruption(fmt.Errorf("empty hot node at offset %d", ref.Offset()))
	}
	switch page.PageKind(decoded[0]) {
	case page.KindHOTIndirect:
		n, err := hot.DecodeHOTIndirectPage(decoded)
		if err != nil {
			return err
		}
		for _, child := range n.Children {
			if err := r.markHOT(child, seen); err != nil {
				return err
			}
		}
		return nil
	case page.KindHOTLeaf:
		_, err := hot.DecodeHOTLeafPage(decoded)
		return err
	default:
		return errs.WrapCorruption(fmt.Errorf("unknown hot node kind %d at offset %d", decoded[0], ref.Offset()))
	}
}

func (r *Resource) markPathSummary(offset int64, seen map[int64]int) error {
	if offset == 0 {
		return nil
	}
	_, decoded, first, err := r.markRaw(offset, seen)
	if err != nil || !first {
		return err
	}
	node, err := page.DecodePathSummaryPage(decoded)
	if err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := r.markPathSummary(child, seen); err != nil {
			return err
		}
	}
	return nil
}
