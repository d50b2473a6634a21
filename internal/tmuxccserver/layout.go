package tmuxccserver

import (
	"sort"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
)

// paneRect is one pane's tmux id and geometry, gathered from the host for
// layout reconstruction.
type paneRect struct {
	tmuxID                   uint64
	width, height, left, top uint64
}

// buildLayoutTree reconstructs a LayoutNode split tree from a tab's flat
// pane rectangle list. The host exposes only per-pane geometry (not the
// split tree that produced it), so this recovers structure with a
// guillotine-cut partition: repeatedly look for a vertical or horizontal
// line that cleanly separates the rectangles into two or more groups whose
// union exactly tiles the bounding box, and recurse into each group. Splits
// produced by this package's own split-window/new-window handlers are
// always grid-aligned and reconstruct exactly; a pathological arrangement
// that defeats guillotine partitioning falls back to a single flat
// left-to-right split, which stays byte-valid but may not exactly mirror
// the original nesting.
func buildLayoutTree(panes []paneRect) tmuxcc.LayoutNode {
	if len(panes) == 1 {
		p := panes[0]
		return tmuxcc.Pane(p.tmuxID, p.width, p.height, p.left, p.top)
	}

	minX, minY, maxX, maxY := boundingBox(panes)
	w, h := maxX-minX, maxY-minY

	if cols, ok := partitionByLeft(panes, minX, maxX); ok {
		children := make([]tmuxcc.LayoutNode, len(cols))
		for i, col := range cols {
			children[i] = buildLayoutTree(col)
		}
		return tmuxcc.Split(tmuxcc.LayoutHorizontal, w, h, minX, minY, children...)
	}
	if rows, ok := partitionByTop(panes, minY, maxY); ok {
		children := make([]tmuxcc.LayoutNode, len(rows))
		for i, row := range rows {
			children[i] = buildLayoutTree(row)
		}
		return tmuxcc.Split(tmuxcc.LayoutVertical, w, h, minX, minY, children...)
	}

	sorted := append([]paneRect(nil), panes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].left != sorted[j].left {
			return sorted[i].left < sorted[j].left
		}
		return sorted[i].top < sorted[j].top
	})
	children := make([]tmuxcc.LayoutNode, len(sorted))
	for i, p := range sorted {
		children[i] = tmuxcc.Pane(p.tmuxID, p.width, p.height, p.left, p.top)
	}
	return tmuxcc.Split(tmuxcc.LayoutHorizontal, w, h, minX, minY, children...)
}

func boundingBox(panes []paneRect) (minX, minY, maxX, maxY uint64) {
	minX, minY = panes[0].left, panes[0].top
	maxX, maxY = panes[0].left+panes[0].width, panes[0].top+panes[0].height
	for _, p := range panes[1:] {
		if p.left < minX {
			minX = p.left
		}
		if p.top < minY {
			minY = p.top
		}
		if r := p.left + p.width; r > maxX {
			maxX = r
		}
		if b := p.top + p.height; b > maxY {
			maxY = b
		}
	}
	return
}

// partitionByLeft groups panes into vertical strips (distinct left
// offsets) and verifies the strips tile [minX, maxX] with exactly a
// one-cell border gap between adjacent strips, matching tmux's own
// layout coordinates (a divider column/row is not assigned to either
// neighboring pane). Ok only when there are at least two strips.
func partitionByLeft(panes []paneRect, minX, maxX uint64) ([][]paneRect, bool) {
	byLeft := map[uint64][]paneRect{}
	for _, p := range panes {
		byLeft[p.left] = append(byLeft[p.left], p)
	}
	if len(byLeft) < 2 {
		return nil, false
	}
	lefts := make([]uint64, 0, len(byLeft))
	for l := range byLeft {
		lefts = append(lefts, l)
	}
	sort.Slice(lefts, func(i, j int) bool { return lefts[i] < lefts[j] })

	cursor := minX
	var cols [][]paneRect
	for i, l := range lefts {
		if l != cursor {
			return nil, false
		}
		group := byLeft[l]
		width := group[0].width
		for _, p := range group {
			if p.width != width {
				return nil, false
			}
		}
		cursor = l + width
		if i < len(lefts)-1 {
			cursor++ // one-cell divider before the next strip
		}
		cols = append(cols, group)
	}
	if cursor != maxX {
		return nil, false
	}
	return cols, true
}

// partitionByTop is partitionByLeft's vertical-stacking dual.
func partitionByTop(panes []paneRect, minY, maxY uint64) ([][]paneRect, bool) {
	byTop := map[uint64][]paneRect{}
	for _, p := range panes {
		byTop[p.top] = append(byTop[p.top], p)
	}
	if len(byTop) < 2 {
		return nil, false
	}
	tops := make([]uint64, 0, len(byTop))
	for t := range byTop {
		tops = append(tops, t)
	}
	sort.Slice(tops, func(i, j int) bool { return tops[i] < tops[j] })

	cursor := minY
	var rows [][]paneRect
	for i, t := range tops {
		if t != cursor {
			return nil, false
		}
		group := byTop[t]
		height := group[0].height
		for _, p := range group {
			if p.height != height {
				return nil, false
			}
		}
		cursor = t + height
		if i < len(tops)-1 {
			cursor++
		}
		rows = append(rows, group)
	}
	if cursor != maxY {
		return nil, false
	}
	return rows, true
}

// BuildLayoutString gathers a tab's current panes from host and idMap and
// renders the full checksummed layout string for a %layout-change
// notification or any other layout emission site.
func BuildLayoutString(host tmuxcc.Host, idMap *tmuxcc.IdMap, tab tmuxcc.TabID) (string, error) {
	paneIDs := host.Panes(tab)
	if len(paneIDs) == 0 {
		return "", nil
	}
	rects := make([]paneRect, 0, len(paneIDs))
	for _, pid := range paneIDs {
		info, err := host.PaneInfo(pid)
		if err != nil {
			return "", err
		}
		rects = append(rects, paneRect{
			tmuxID: idMap.GetOrCreateTmuxPaneID(pid),
			width:  info.Width, height: info.Height, left: info.Left, top: info.Top,
		})
	}
	tree := buildLayoutTree(rects)
	return tmuxcc.GenerateLayoutString(tree), nil
}
