package shape

import (
	"math"
	"sort"
)

// DefaultPortalMargin is how far inside the viewport boundary portals sit,
// and how far beyond the boundary an anchor must be before one appears.
const DefaultPortalMargin = 24.0

// PlacePortal computes an edge-of-viewport indicator for a shape whose
// anchor, in pixel space, has scrolled off-screen. The portal lies on the
// margin-inset viewport boundary, on the ray from the viewport's pixel
// center through the anchor, then gets nudged tangentially along its edge
// out of any exclusion zone. The nudge trades exact directional accuracy for
// guaranteed non-overlap with interactive chrome.
//
// Returns ok=false when the anchor is still within the viewport plus margin
// (no indicator needed), when the anchor coincides with the viewport center
// (direction undefined), or when the chosen edge is fully covered by
// exclusion zones.
func PlacePortal(anchorX, anchorY float64, vp Viewport, margin float64, zones []ExclusionZone) (Portal, bool) {
	if margin <= 0 {
		margin = DefaultPortalMargin
	}
	if vp.Width <= 2*margin || vp.Height <= 2*margin {
		return Portal{}, false
	}

	// Anchor still on screen (plus margin): no portal.
	if anchorX >= -margin && anchorX <= vp.Width+margin &&
		anchorY >= -margin && anchorY <= vp.Height+margin {
		return Portal{}, false
	}

	cx, cy := vp.Center()
	dx, dy := anchorX-cx, anchorY-cy
	if dx == 0 && dy == 0 {
		return Portal{}, false
	}

	left, right := margin, vp.Width-margin
	top, bottom := margin, vp.Height-margin

	// Smallest positive t where (cx+t*dx, cy+t*dy) crosses a margin-inset
	// edge within that edge's perpendicular bounds.
	bestT := math.Inf(1)
	var best Portal

	consider := func(t float64, p Portal) {
		if t > 0 && t < bestT {
			bestT = t
			best = p
		}
	}

	if dx > 0 {
		t := (right - cx) / dx
		if y := cy + t*dy; y >= top && y <= bottom {
			consider(t, Portal{X: right, Y: y, Edge: EdgeRight})
		}
	} else if dx < 0 {
		t := (left - cx) / dx
		if y := cy + t*dy; y >= top && y <= bottom {
			consider(t, Portal{X: left, Y: y, Edge: EdgeLeft})
		}
	}
	if dy > 0 {
		t := (bottom - cy) / dy
		if x := cx + t*dx; x >= left && x <= right {
			consider(t, Portal{X: x, Y: bottom, Edge: EdgeBottom})
		}
	} else if dy < 0 {
		t := (top - cy) / dy
		if x := cx + t*dx; x >= left && x <= right {
			consider(t, Portal{X: x, Y: top, Edge: EdgeTop})
		}
	}

	if math.IsInf(bestT, 1) {
		return Portal{}, false
	}

	return nudgeOffExclusions(best, vp, margin, zones)
}

// nudgeOffExclusions slides a portal tangentially along its edge to the
// nearest point outside every exclusion zone, clamped to the edge span.
func nudgeOffExclusions(p Portal, vp Viewport, margin float64, zones []ExclusionZone) (Portal, bool) {
	lo, hi := margin, vp.Width-margin
	if p.Edge == EdgeLeft || p.Edge == EdgeRight {
		lo, hi = margin, vp.Height-margin
	}

	v := p.X
	if p.Edge == EdgeLeft || p.Edge == EdgeRight {
		v = p.Y
	}

	blocked := blockedIntervals(p, zones)
	nv, ok := nearestFree(v, lo, hi, blocked)
	if !ok {
		return Portal{}, false
	}

	if p.Edge == EdgeLeft || p.Edge == EdgeRight {
		p.Y = nv
	} else {
		p.X = nv
	}
	return p, true
}

type interval struct{ lo, hi float64 }

// blockedIntervals collects the spans along the portal's edge covered by
// exclusion zones that reach the edge line.
func blockedIntervals(p Portal, zones []ExclusionZone) []interval {
	var out []interval
	for _, z := range zones {
		switch p.Edge {
		case EdgeTop, EdgeBottom:
			if z.ContainsY(p.Y) {
				out = append(out, interval{z.MinX, z.MaxX})
			}
		case EdgeLeft, EdgeRight:
			if z.ContainsX(p.X) {
				out = append(out, interval{z.MinY, z.MaxY})
			}
		}
	}
	return mergeIntervals(out)
}

func mergeIntervals(in []interval) []interval {
	if len(in) < 2 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].lo < in[j].lo })
	out := in[:1]
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if iv.lo <= last.hi {
			if iv.hi > last.hi {
				last.hi = iv.hi
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// nearestFree returns the closest value to v in [lo, hi] not strictly inside
// any blocked interval. Returns ok=false when the whole span is blocked.
func nearestFree(v, lo, hi float64, blocked []interval) (float64, bool) {
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}

	inside := func(x float64) (interval, bool) {
		for _, iv := range blocked {
			if x > iv.lo && x < iv.hi {
				return iv, true
			}
		}
		return interval{}, false
	}

	iv, hit := inside(v)
	if !hit {
		return v, true
	}

	// Walk outward from both ends of the covering interval; consecutive
	// intervals may abut, so keep stepping until a free spot or the span
	// runs out.
	down, downOK := iv.lo, iv.lo >= lo
	for downOK {
		cover, h := inside(down)
		if !h {
			break
		}
		down = cover.lo
		downOK = down >= lo
	}
	up, upOK := iv.hi, iv.hi <= hi
	for upOK {
		cover, h := inside(up)
		if !h {
			break
		}
		up = cover.hi
		upOK = up <= hi
	}

	switch {
	case downOK && upOK:
		if v-down <= up-v {
			return down, true
		}
		return up, true
	case downOK:
		return down, true
	case upOK:
		return up, true
	default:
		return 0, false
	}
}
