package tree

// Status mirrors Node::STATUS.
type Status int

const (
	New Status = iota
	First
	Intermediate
	Final
)

func (s Status) String() string {
	switch s {
	case New:
		return "NEW"
	case First:
		return "FIRST"
	case Intermediate:
		return "INTERMEDIATE"
	case Final:
		return "FINAL"
	default:
		return "NOSTATUS"
	}
}

const noIndex = -1

// node is a plain record kept in a Tree's arena (design note: "Tree graph
// ownership" — contiguous arena indexed by id, instead of the original's
// raw back-pointers). Branches reference nodes by index for traversal only.
type node struct {
	status                  Status
	inputBranch             int // index into tree.branches, or noIndex
	outputLow, outputHigh   int // index into tree.branches, or noIndex
	weight                  float64
	weightLocked            bool
	sumSource, sumTarget    float64
	splitGain               float64 // chi-square of the split this node performed, for VarImp
}

// branch is a plain record: a cut plus the parent/child node ids it connects.
// Sums are captured at split time and never updated thereafter (spec.md §3).
type branch struct {
	cut                  Cut
	parent               int // node index
	child                int // node index, or noIndex until the child is created
	sumSource, sumTarget float64
}
