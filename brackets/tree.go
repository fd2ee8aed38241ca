package brackets

import (
	"errors"
	"math/rand/v2"
	"sort"
)

var (
	ErrEmptyBracket      = errors.New("bracket is empty")
	ErrTournamentRunning = errors.New("tournament is still running")
)

// Node is one position of a single-elimination bracket. Leaves carry a
// participant from the start, internal nodes get one once the match below
// them has a winner.
type Node struct {
	ParticipantID *int  `json:"participant_id,omitempty"`
	Left          *Node `json:"left,omitempty"`
	Right         *Node `json:"right,omitempty"`
}

// Placement is the final position of a participant after the bracket is resolved.
type Placement struct {
	ParticipantID int `json:"participant_id"`
	Wins          int `json:"wins"`
	Position      int `json:"position"`
}

func (n *Node) IsResolved() bool {
	return n != nil && n.ParticipantID != nil
}

func (n *Node) isLeaf() bool {
	return n != nil && n.Left == nil && n.Right == nil
}

// Build splits [l, r) at the midpoint until every range holds one participant.
// The caller is responsible for shuffling participantIDs first.
func Build(participantIDs []int) *Node {
	return build(participantIDs, 0, len(participantIDs))
}

func build(ids []int, l, r int) *Node {
	if l >= r {
		return nil
	}
	if r-l == 1 {
		id := ids[l]
		return &Node{ParticipantID: &id}
	}

	mid := l + (r-l)/2
	return &Node{
		Left:  build(ids, l, mid),
		Right: build(ids, mid, r),
	}
}

// Shuffle returns a Fisher-Yates permutation of ids, the input is left untouched.
func Shuffle(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// FindOpponent returns the participant currently paired with participantID,
// i.e. the resolved sibling under an unresolved parent.
func FindOpponent(root *Node, participantID int) (int, bool) {
	if root == nil || root.IsResolved() {
		return 0, false
	}

	if root.Left.IsResolved() && root.Right.IsResolved() {
		left, right := *root.Left.ParticipantID, *root.Right.ParticipantID
		switch participantID {
		case left:
			return right, true
		case right:
			return left, true
		}
		return 0, false
	}

	if id, ok := FindOpponent(root.Left, participantID); ok {
		return id, true
	}
	return FindOpponent(root.Right, participantID)
}

// RecordOutcome promotes winnerID into the unresolved node whose children are
// exactly {idA, idB}. It reports false when no such match is pending.
func RecordOutcome(root *Node, idA, idB, winnerID int) bool {
	if idA == idB || (winnerID != idA && winnerID != idB) {
		return false
	}
	return recordOutcome(root, idA, idB, winnerID)
}

func recordOutcome(n *Node, idA, idB, winnerID int) bool {
	if n == nil || n.IsResolved() {
		return false
	}

	if n.Left.IsResolved() && n.Right.IsResolved() {
		left, right := *n.Left.ParticipantID, *n.Right.ParticipantID
		if (left == idA && right == idB) || (left == idB && right == idA) {
			winner := winnerID
			n.ParticipantID = &winner
			return true
		}
		return false
	}

	// One side already holds a player of this pair while the other side is
	// still open: the pair cannot meet anywhere below.
	if holdsEither(n.Left, idA, idB) || holdsEither(n.Right, idA, idB) {
		return false
	}

	return recordOutcome(n.Left, idA, idB, winnerID) || recordOutcome(n.Right, idA, idB, winnerID)
}

func holdsEither(n *Node, idA, idB int) bool {
	if !n.IsResolved() {
		return false
	}
	return *n.ParticipantID == idA || *n.ParticipantID == idB
}

// Winner returns the champion once the root is resolved.
func Winner(root *Node) (int, bool) {
	if !root.IsResolved() {
		return 0, false
	}
	return *root.ParticipantID, true
}

func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Left:  Clone(n.Left),
		Right: Clone(n.Right),
	}
	if n.ParticipantID != nil {
		id := *n.ParticipantID
		out.ParticipantID = &id
	}
	return out
}

// Depth counts edges on the longest root-to-leaf path.
func Depth(n *Node) int {
	if n == nil || n.isLeaf() {
		return 0
	}
	return 1 + max(Depth(n.Left), Depth(n.Right))
}

func LeafCount(n *Node) int {
	if n == nil {
		return 0
	}
	if n.isLeaf() {
		return 1
	}
	return LeafCount(n.Left) + LeafCount(n.Right)
}

// Participants lists the leaf participants from left to right.
func Participants(n *Node) []int {
	var ids []int
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.isLeaf() {
			if n.ParticipantID != nil {
				ids = append(ids, *n.ParticipantID)
			}
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(n)
	return ids
}

// Standings ranks every participant of a finished bracket. The champion is
// first, the rest follow by wins descending and participant id ascending.
func Standings(root *Node) ([]Placement, error) {
	if root == nil {
		return nil, ErrEmptyBracket
	}
	champion, ok := Winner(root)
	if !ok {
		return nil, ErrTournamentRunning
	}

	occupied := make(map[int]int)
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.ParticipantID != nil {
			occupied[*n.ParticipantID]++
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(root)

	rest := make([]Placement, 0, len(occupied))
	for id, count := range occupied {
		if id == champion {
			continue
		}
		rest = append(rest, Placement{ParticipantID: id, Wins: count - 1})
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Wins != rest[j].Wins {
			return rest[i].Wins > rest[j].Wins
		}
		return rest[i].ParticipantID < rest[j].ParticipantID
	})

	placements := make([]Placement, 0, len(occupied))
	placements = append(placements, Placement{ParticipantID: champion, Wins: occupied[champion] - 1, Position: 1})
	for i, p := range rest {
		p.Position = i + 2
		placements = append(placements, p)
	}
	return placements, nil
}
