package queryir

// Relation is a FROM item.
type Relation interface {
	relationNode()
}

// Result is the shape a Select produces.
type Result interface {
	resultNode()
}

// Value is a scalar expression.
type Value interface {
	valueNode()
}

// Predicate is a boolean condition.
type Predicate interface {
	predicateNode()
}

// Select reads rows from From, joined with Joins, filtered by Where.
//
// Semantics:
//
//	SELECT <Result> FROM <From> AS <Alias> [JOIN ...] [WHERE <Where>]
//	ORDER BY <OrderBy> [LIMIT <Limit>]
//
// A nil From selects without a FROM clause, which Exists results use.
type Select struct {
	From    Relation
	Alias   string
	Joins   []Join
	Where   Predicate
	Result  Result
	OrderBy []*Column
	Limit   Value
}

// Join is an inner join.
type Join struct {
	From  Relation
	Alias string
	On    Predicate
}

// Table is a stored table.
type Table struct {
	Name string
}

func (*Table) relationNode() {}

// Derived is a sub-select used as a relation. Its rows keep the column
// names of the inner result.
type Derived struct {
	Query *Select
}

func (*Derived) relationNode() {}

// Rows selects the mapped columns of one alias.
type Rows struct {
	Alias   string
	Columns []string
}

func (*Rows) resultNode() {}

// Scalar selects one expression per row.
type Scalar struct {
	Value Value
}

func (*Scalar) resultNode() {}

// Count selects COUNT(*).
type Count struct{}

func (*Count) resultNode() {}

// Column references a column of an alias.
type Column struct {
	Alias string
	Name  string
}

func (*Column) valueNode() {}

// Literal is a parameter value: nil, bool, int64 or string.
type Literal struct {
	Value any
}

func (*Literal) valueNode() {}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	Add ArithOp = "+"
	Sub ArithOp = "-"
	Mul ArithOp = "*"
	Div ArithOp = "/"
	Mod ArithOp = "%"

	// Concat joins two strings.
	Concat ArithOp = "||"
)

// Arith is a binary arithmetic expression.
type Arith struct {
	Op          ArithOp
	Left, Right Value
}

func (*Arith) valueNode() {}

// Negate is unary minus.
type Negate struct {
	Operand Value
}

func (*Negate) valueNode() {}

// Length is the character length of a string.
type Length struct {
	Operand Value
}

func (*Length) valueNode() {}

// Subquery is a sub-select producing a single value: a Scalar or Count
// result over at most one row.
type Subquery struct {
	Query *Select
}

func (*Subquery) valueNode() {}

// Condition is a predicate used as a 0/1 value.
type Condition struct {
	Predicate Predicate
}

func (*Condition) valueNode() {}

// CompareOp is a comparison operator.
type CompareOp string

const (
	Eq CompareOp = "="
	Ne CompareOp = "<>"
	Lt CompareOp = "<"
	Le CompareOp = "<="
	Gt CompareOp = ">"
	Ge CompareOp = ">="
)

// Compare compares two values. Comparisons with NULL are expressed with
// IsNull instead.
type Compare struct {
	Op          CompareOp
	Left, Right Value
}

func (*Compare) predicateNode() {}

// IsNull tests a value for NULL, or for NOT NULL when Negated.
type IsNull struct {
	Operand Value
	Negated bool
}

func (*IsNull) predicateNode() {}

// And is a conjunction. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (*And) predicateNode() {}

// Or is a disjunction. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (*Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (*Not) predicateNode() {}

// Exists is true when the sub-select returns a row.
type Exists struct {
	Query *Select
}

func (*Exists) predicateNode() {}

// Contains is a case-sensitive substring test.
type Contains struct {
	Operand, Substring Value
}

func (*Contains) predicateNode() {}

// HasPrefix is a case-sensitive prefix test.
type HasPrefix struct {
	Operand, Prefix Value
}

func (*HasPrefix) predicateNode() {}

// Truth uses a boolean value as a predicate.
type Truth struct {
	Value Value
}

func (*Truth) predicateNode() {}

// Conjoin ANDs p and q, flattening nested conjunctions. Either may be nil.
func Conjoin(p, q Predicate) Predicate {
	switch {
	case p == nil:
		return q
	case q == nil:
		return p
	}
	var preds []Predicate
	for _, x := range []Predicate{p, q} {
		if a, ok := x.(*And); ok {
			preds = append(preds, a.Predicates...)
		} else {
			preds = append(preds, x)
		}
	}
	return &And{Predicates: preds}
}

// ValueColumn names the column a Scalar result is exposed under when its
// select is used as a Derived relation.
const ValueColumn = "value"
