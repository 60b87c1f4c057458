package formula

// Node is one element of a parsed expression tree.
type Node interface {
	eval(env Env) (interface{}, error)
	walk(fn func(Node))
}

type literalNode struct {
	value interface{}
}

type refNode struct {
	name string
}

type unaryNode struct {
	op      string
	operand Node
}

type binaryNode struct {
	op          string
	left, right Node
}

type callNode struct {
	name string
	args []Node
}

func (n *literalNode) walk(fn func(Node)) { fn(n) }
func (n *refNode) walk(fn func(Node))     { fn(n) }

func (n *unaryNode) walk(fn func(Node)) {
	fn(n)
	n.operand.walk(fn)
}

func (n *binaryNode) walk(fn func(Node)) {
	fn(n)
	n.left.walk(fn)
	n.right.walk(fn)
}

func (n *callNode) walk(fn func(Node)) {
	fn(n)
	for _, arg := range n.args {
		arg.walk(fn)
	}
}
