package http2

// Scheduler implements the RFC 7540 §5.3 dependency tree: a rooted tree of
// weighted nodes used to proportionally allocate DATA egress across active
// streams (§4.4). Nodes are held in an arena and referenced by handle rather
// than pointer, per the design note on avoiding cyclic back-pointers when a
// node outlives its stream (closed-stream ring).
//
// https://tools.ietf.org/html/rfc7540#section-5.3
type nodeHandle int32

const nilHandle nodeHandle = -1

const defaultWeight byte = 15 // wire value 15 == priority weight 16

type schedNode struct {
	streamID uint32
	weight   byte

	parent      nodeHandle
	firstChild  nodeHandle
	nextSibling nodeHandle
	prevSibling nodeHandle

	// active is true when this node's stream has DATA ready to send and a
	// non-zero output window.
	active bool

	// activeDescendants counts active nodes in the subtree rooted here,
	// including itself; used to prune inactive branches during selection.
	activeDescendants int

	// rrCredit is this node's surplus-round-robin credit among its siblings.
	rrCredit int

	// closedSlot is the ring index holding this node after its stream
	// closed, or -1 if the node still backs a live stream.
	closedSlot int

	// priorityOnly is true for a node with no live stream behind it: either
	// a PRIORITY-only placeholder (no HEADERS seen yet) or a closed stream
	// parked in the ring. Counted against trackedForPriority.
	priorityOnly bool

	inUse bool
}

// Scheduler owns one connection's dependency tree plus its closed-stream
// retention ring (§3 recently_closed_streams, §4.4).
type Scheduler struct {
	nodes []schedNode
	free  []nodeHandle

	byStream map[uint32]nodeHandle

	root nodeHandle

	closedRing []nodeHandle
	closedNext int

	// isChromiumTree starts true and is cleared by the first observation
	// that contradicts the Chromium placement heuristic (§4.4).
	isChromiumTree bool

	maxTrackedForPriority int
	trackedForPriority    int
}

// NewScheduler builds a scheduler whose closed-stream ring holds
// closedRingCap entries and which tracks at most maxTrackedForPriority
// bookkeeping-only (idle/closed) nodes before refusing more with
// ENHANCE_YOUR_CALM.
func NewScheduler(closedRingCap, maxTrackedForPriority int) *Scheduler {
	sc := &Scheduler{
		byStream:              make(map[uint32]nodeHandle),
		closedRing:            make([]nodeHandle, closedRingCap),
		isChromiumTree:        true,
		maxTrackedForPriority: maxTrackedForPriority,
	}
	for i := range sc.closedRing {
		sc.closedRing[i] = nilHandle
	}
	sc.root = sc.alloc(0, defaultWeight)
	sc.nodes[sc.root].parent = nilHandle
	return sc
}

func (sc *Scheduler) alloc(streamID uint32, weight byte) nodeHandle {
	var h nodeHandle
	if n := len(sc.free); n > 0 {
		h = sc.free[n-1]
		sc.free = sc.free[:n-1]
	} else {
		sc.nodes = append(sc.nodes, schedNode{})
		h = nodeHandle(len(sc.nodes) - 1)
	}

	sc.nodes[h] = schedNode{
		streamID:   streamID,
		weight:     weight,
		parent:     nilHandle,
		firstChild: nilHandle,
		nextSibling: nilHandle,
		prevSibling: nilHandle,
		closedSlot: -1,
		inUse:      true,
	}
	return h
}

// Open inserts a node for streamID under the root with default priority,
// the placement used for any HEADERS with no PRIORITY prefix. If a
// priority-only node already exists for streamID (from an earlier PRIORITY
// frame referencing it before HEADERS arrived), that node is promoted to
// back the live stream instead of allocating a duplicate.
func (sc *Scheduler) Open(streamID uint32) nodeHandle {
	if h, ok := sc.byStream[streamID]; ok {
		n := &sc.nodes[h]
		if n.priorityOnly {
			n.priorityOnly = false
			sc.trackedForPriority--
		}
		if n.closedSlot >= 0 {
			sc.closedRing[n.closedSlot] = nilHandle
			n.closedSlot = -1
		}
		return h
	}

	h := sc.alloc(streamID, defaultWeight)
	sc.attachChild(sc.root, h)
	sc.byStream[streamID] = h
	return h
}

// OpenForPriorityOnly inserts a bookkeeping-only node for a PRIORITY frame
// whose stream has no live HEADERS yet. It is parked in the same bounded
// retention ring closed streams use, so a flood of such placeholders
// recycles the oldest entries instead of growing without bound; the
// connection-scoped cap (max_streams_for_priority, §4.4/§6) is enforced by
// the caller via CanTrackForPriority before this is invoked.
func (sc *Scheduler) OpenForPriorityOnly(streamID uint32) nodeHandle {
	h := sc.alloc(streamID, defaultWeight)
	sc.nodes[h].priorityOnly = true
	sc.attachChild(sc.root, h)
	sc.parkInRing(h)
	return h
}

// IsChromiumTree reports the current value of the Chromium-heuristic flag.
func (sc *Scheduler) IsChromiumTree() bool { return sc.isChromiumTree }

// ObservePlacement clears the Chromium-tree heuristic flag the first time a
// client's PRIORITY contradicts the expected shape: a non-exclusive
// dependency, or a child weight greater than its (exclusive) parent's
// weight along the chain (§4.4).
func (sc *Scheduler) ObservePlacement(exclusive bool, childWeight, parentWeight byte) {
	if !sc.isChromiumTree {
		return
	}
	if !exclusive || childWeight > parentWeight {
		sc.isChromiumTree = false
	}
}

// Reprioritize moves h to depend on the node backing depStreamID (or root if
// that id is neither live nor in the closed-stream ring), with the given
// wire weight byte and exclusivity. It implements the general reparenting
// algorithm of §5.3.3: if the new parent is currently a descendant of h,
// that descendant is first relocated to h's old parent so no cycle forms.
func (sc *Scheduler) Reprioritize(h nodeHandle, depStreamID uint32, weight byte, exclusive bool) {
	newParent, ok := sc.byStream[depStreamID]
	if !ok || newParent == h {
		newParent = sc.root
	}

	if sc.isDescendant(h, newParent) {
		oldParentOfH := sc.nodes[h].parent
		sc.detach(newParent)
		sc.attachChild(oldParentOfH, newParent)
	}

	sc.detach(h)

	if exclusive {
		child := sc.nodes[newParent].firstChild
		for child != nilHandle {
			next := sc.nodes[child].nextSibling
			sc.detach(child)
			sc.attachChild(h, child)
			child = next
		}
	}

	sc.nodes[h].weight = weight
	sc.attachChild(newParent, h)
}

func (sc *Scheduler) isDescendant(ancestor, node nodeHandle) bool {
	for p := sc.nodes[node].parent; p != nilHandle; p = sc.nodes[p].parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (sc *Scheduler) detach(h nodeHandle) {
	n := &sc.nodes[h]
	if n.parent == nilHandle {
		return
	}
	parent := &sc.nodes[n.parent]

	if n.prevSibling != nilHandle {
		sc.nodes[n.prevSibling].nextSibling = n.nextSibling
	} else {
		parent.firstChild = n.nextSibling
	}
	if n.nextSibling != nilHandle {
		sc.nodes[n.nextSibling].prevSibling = n.prevSibling
	}

	delta := n.activeDescendants
	for p := n.parent; p != nilHandle; p = sc.nodes[p].parent {
		sc.nodes[p].activeDescendants -= delta
	}

	n.parent = nilHandle
	n.nextSibling = nilHandle
	n.prevSibling = nilHandle
}

func (sc *Scheduler) attachChild(parent, h nodeHandle) {
	n := &sc.nodes[h]
	n.parent = parent
	n.prevSibling = nilHandle
	n.nextSibling = sc.nodes[parent].firstChild
	if n.nextSibling != nilHandle {
		sc.nodes[n.nextSibling].prevSibling = h
	}
	sc.nodes[parent].firstChild = h

	delta := n.activeDescendants
	if delta != 0 {
		for p := parent; p != nilHandle; p = sc.nodes[p].parent {
			sc.nodes[p].activeDescendants += delta
		}
	}
}

// Activate marks h's stream as having DATA ready to send.
func (sc *Scheduler) Activate(h nodeHandle) {
	n := &sc.nodes[h]
	if n.active {
		return
	}
	n.active = true
	n.activeDescendants++
	for p := n.parent; p != nilHandle; p = sc.nodes[p].parent {
		sc.nodes[p].activeDescendants++
	}
}

// Deactivate marks h's stream as having no DATA ready (output window
// exhausted or queue drained).
func (sc *Scheduler) Deactivate(h nodeHandle) {
	n := &sc.nodes[h]
	if !n.active {
		return
	}
	n.active = false
	n.activeDescendants--
	for p := n.parent; p != nilHandle; p = sc.nodes[p].parent {
		sc.nodes[p].activeDescendants--
	}
}

// NextSender descends the tree choosing, at each level, among children
// whose subtree has active work, via surplus round robin weighted by each
// child's wire weight. It returns nilHandle if nothing is active.
func (sc *Scheduler) NextSender() nodeHandle {
	cur := sc.root
	for {
		child := sc.pickActiveChild(cur)
		if child == nilHandle {
			if cur != sc.root && sc.nodes[cur].active {
				return cur
			}
			return nilHandle
		}
		if sc.nodes[child].active {
			return child
		}
		cur = child
	}
}

func (sc *Scheduler) pickActiveChild(parent nodeHandle) nodeHandle {
	var best nodeHandle = nilHandle
	bestCredit := 0
	totalWeight := 0
	count := 0

	for c := sc.nodes[parent].firstChild; c != nilHandle; c = sc.nodes[c].nextSibling {
		if sc.nodes[c].activeDescendants == 0 {
			continue
		}
		cn := &sc.nodes[c]
		cn.rrCredit += int(cn.weight) + 1
		totalWeight += int(cn.weight) + 1
		count++
		if best == nilHandle || cn.rrCredit > bestCredit {
			best = c
			bestCredit = cn.rrCredit
		}
	}

	if best != nilHandle {
		sc.nodes[best].rrCredit -= totalWeight
		_ = count
	}

	return best
}

// Close detaches h from the live tree and parks it in the closed-stream
// ring so a later PRIORITY referencing this stream id still finds a
// placement (§3 recently_closed_streams, §4.4). If the ring slot was
// occupied, the prior occupant is evicted (freed) first.
func (sc *Scheduler) Close(h nodeHandle) {
	sc.Deactivate(h)
	delete(sc.byStream, sc.nodes[h].streamID)

	if len(sc.closedRing) == 0 {
		sc.detach(h)
		sc.free = append(sc.free, h)
		return
	}

	sc.nodes[h].priorityOnly = true
	sc.parkInRing(h)
}

// parkInRing places h (already detached from its real parent in all but the
// tree-attachment sense) into the retention ring, evicting and freeing the
// slot's previous occupant if any. Shared by Close (stream just ended) and
// OpenForPriorityOnly (placeholder for a not-yet-live stream).
func (sc *Scheduler) parkInRing(h nodeHandle) {
	if len(sc.closedRing) == 0 {
		sc.detach(h)
		sc.free = append(sc.free, h)
		return
	}

	slot := sc.closedNext
	sc.closedNext = (sc.closedNext + 1) % len(sc.closedRing)

	if prev := sc.closedRing[slot]; prev != nilHandle {
		sc.detach(prev)
		delete(sc.byStream, sc.nodes[prev].streamID)
		sc.free = append(sc.free, prev)
		sc.trackedForPriority--
	}

	sc.closedRing[slot] = h
	sc.nodes[h].closedSlot = slot
	sc.byStream[sc.nodes[h].streamID] = h
	sc.trackedForPriority++
}

// StreamID returns the stream id backing h.
func (sc *Scheduler) StreamID(h nodeHandle) uint32 { return sc.nodes[h].streamID }

// CanTrackForPriority reports whether another bookkeeping-only (idle or
// closed) node can be admitted without exceeding max_streams_for_priority;
// exceeding it is ENHANCE_YOUR_CALM at the connection scope (§6, §4.4).
func (sc *Scheduler) CanTrackForPriority() bool {
	return sc.maxTrackedForPriority <= 0 || sc.trackedForPriority < sc.maxTrackedForPriority
}
