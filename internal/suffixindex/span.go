package suffixindex

import "sort"

// Span is an ephemeral lookup cursor into a TokenIndex: a reference
// node plus the depth reached by narrowing so far. A span is a
// snapshot handle: it may be used concurrently with writers, and its
// Size reflects whatever the tree held at the moment of the narrow
// call that produced it.
type Span struct {
	src       TokenSource
	depth     uint32
	treeDepth uint32
	node      *node // nil once a Narrow call finds no match
}

// Size returns the number of positions the span currently covers.
func (s Span) Size() uint32 {
	if s.node == nil {
		return 0
	}
	return s.node.size()
}

// Depth returns the number of tokens consumed by Narrow calls so far.
func (s Span) Depth() uint32 { return s.depth }

// TreeDepth returns the number of tree edges descended so far. It stops
// growing once the span enters a leaf, while Depth keeps counting
// in-leaf narrowing steps.
func (s Span) TreeDepth() uint32 { return s.treeDepth }

// Empty reports whether the span matches nothing, either because a
// Narrow call failed or because it narrowed onto a structurally empty
// leaf.
func (s Span) Empty() bool { return s.node == nil || s.Size() == 0 }

// InLeaf reports whether the span has descended into a leaf's suffix
// array (as opposed to still standing on an internal node).
func (s Span) InLeaf() bool { return s.node != nil && s.node.isLeaf() }

// ChildTokens returns the distinct token ids available to Narrow from
// the span's current frontier, in ascending order. On an internal node
// these are the child map's keys; inside a leaf they are found by a
// skip-to-next-distinct-token walk of the positions at the current
// depth, with the implicit EOS included for positions whose real
// tokens end exactly here; positions already past their EOS
// contribute nothing.
func (s Span) ChildTokens() []Token {
	if s.node == nil {
		return nil
	}
	if !s.node.isLeaf() {
		return s.node.children().keys()
	}
	seen := make(map[Token]struct{})
	var out []Token
	for _, p := range s.node.array() {
		var tok Token
		length := s.src.Length(p.Sid)
		if p.Offset+s.depth > length {
			continue
		}
		if p.Offset+s.depth == length {
			tok = EOS
		} else {
			tok = s.src.TokenAt(p.Sid, p.Offset+s.depth)
		}
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Narrow returns a new span restricted to positions whose token at the
// current depth equals tok. On failure the returned span is empty
// (Size() == 0); it still records the deeper depth so a caller
// accumulating a query sequence can keep counting consumed tokens even
// through a failed narrow.
func (s Span) Narrow(tok Token) Span {
	failed := Span{src: s.src, depth: s.depth + 1, treeDepth: s.treeDepth}
	if s.node == nil {
		return failed
	}
	if s.node.isLeaf() {
		// Every position in the leaf shares the first depth tokens, so
		// the suffix order sorts them by the token at this depth, with
		// positions whose real tokens have run out (the implicit EOS,
		// the shorter suffix) leading. A position already past its EOS
		// has no token at this depth and matches nothing. The matching
		// sub-range is found by binary search over that key.
		arr := s.node.array()
		rank := func(p Position) int64 {
			length := s.src.Length(p.Sid)
			if p.Offset+s.depth > length {
				return -2
			}
			if p.Offset+s.depth == length {
				return -1
			}
			return int64(s.src.TokenAt(p.Sid, p.Offset+s.depth))
		}
		want := int64(tok)
		if tok == EOS {
			want = -1
		}
		lo := sort.Search(len(arr), func(i int) bool { return rank(arr[i]) >= want })
		hi := sort.Search(len(arr), func(i int) bool { return rank(arr[i]) > want })
		if lo == hi {
			return failed
		}
		matched := arr[lo:hi]
		leaf := newLeaf(tok == EOS)
		leaf.arr.Store(&matched)
		return Span{src: s.src, depth: s.depth + 1, treeDepth: s.treeDepth, node: leaf}
	}
	child, ok := s.node.children().find(tok)
	if !ok {
		return failed
	}
	return Span{src: s.src, depth: s.depth + 1, treeDepth: s.treeDepth + 1, node: child}
}

// At returns the rank-th position (0-based) covered by the span, in
// sorted suffix order, walking child partial sums when the span still
// stands on an internal node.
func (s Span) At(rank uint32) (Position, bool) {
	if s.node == nil {
		return Position{}, false
	}
	return s.node.at(rank)
}

// Positions returns every position the span covers, in sorted suffix
// order. Intended for small narrowed spans; a caller sampling from a
// large span should prefer At for random access instead of
// materialising the whole slice.
func (s Span) Positions() []Position {
	if s.node == nil {
		return nil
	}
	return s.node.sortedPositions()
}
