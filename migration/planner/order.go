// Package planner orders migration steps and, through its dialect subpackages,
// turns them into SQL statement ASTs.
package planner

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/steps"
)

// ErrCyclicDependency is wrapped by CycleError.
var ErrCyclicDependency = errors.New("cyclic dependency between migration steps")

// CycleError reports steps that could not be ordered because they depend on each
// other.
type CycleError struct {
	// Steps are the steps left over once every orderable step was placed, in
	// their original order.
	Steps []steps.Step
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		names[i] = s.String()
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(names, "; "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// Order returns the steps in an order that satisfies every must-precede
// relation between them:
//
//   - tables and columns exist before foreign keys and indexes that use them;
//   - foreign keys are dropped before the tables and columns they involve;
//   - removals run before additions that reuse the same name, and every variant
//     removal of an enum runs before any variant addition to it;
//   - enums and variants exist before columns start using them, and columns stop
//     using an enum before its variant list changes or the enum is dropped;
//   - indexes are dropped before the columns they cover;
//   - a primary key changes once its new columns are in shape and the foreign
//     keys and indexes of its table are dropped, and before its old columns
//     are dropped or relaxed.
//
// Among steps whose dependencies are satisfied, the one emitted first by the
// differ goes first, so the result is deterministic. The input slice is not
// modified. A cycle is the only failure and yields a *CycleError.
func Order(list []steps.Step) ([]steps.Step, error) {
	g := newGraph(len(list))
	for i, a := range list {
		for j, b := range list {
			if i != j && precedes(a, b) {
				g.addEdge(i, j)
			}
		}
	}

	order, rest := g.sort()
	out := make([]steps.Step, len(order))
	for i, idx := range order {
		out[i] = list[idx]
	}
	if len(rest) > 0 {
		cyclic := make([]steps.Step, len(rest))
		for i, idx := range rest {
			cyclic[i] = list[idx]
		}
		return nil, &CycleError{Steps: cyclic}
	}
	return out, nil
}

// graph is an arena of step indexes with must-precede edges.
type graph struct {
	edges    [][]int
	inDegree []int
}

func newGraph(n int) *graph {
	return &graph{
		edges:    make([][]int, n),
		inDegree: make([]int, n),
	}
}

func (g *graph) addEdge(from, to int) {
	if slices.Contains(g.edges[from], to) {
		return
	}
	g.edges[from] = append(g.edges[from], to)
	g.inDegree[to]++
}

// sort runs Kahn's algorithm, always taking the lowest ready index. It returns the
// sorted indexes and, when the graph has a cycle, the indexes that were never
// ready, ascending.
func (g *graph) sort() (sorted, rest []int) {
	inDegree := slices.Clone(g.inDegree)
	ready := &intHeap{}
	for i, d := range inDegree {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		sorted = append(sorted, n)
		for _, m := range g.edges[n] {
			inDegree[m]--
			if inDegree[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	for i, d := range inDegree {
		if d > 0 {
			rest = append(rest, i)
		}
	}
	return sorted, rest
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// precedes reports whether step a must run before step b.
func precedes(a, b steps.Step) bool {
	switch a := a.(type) {
	case steps.CreateTable:
		switch b := b.(type) {
		case steps.AddForeignKey:
			return b.Table == a.Table.Name || b.ForeignKey.ReferencedTable == a.Table.Name
		case steps.CreateIndex:
			return b.Table == a.Table.Name
		}

	case steps.DropTable:
		switch b := b.(type) {
		case steps.CreateTable:
			return b.Table.Name == a.Table.Name
		case steps.RemoveEnumVariant:
			return tableUsesEnum(a.Table, b.Enum)
		case steps.AddEnumVariant:
			return tableUsesEnum(a.Table, b.Enum)
		case steps.ReorderEnumVariants:
			return tableUsesEnum(a.Table, b.Enum)
		case steps.DropEnum:
			return tableUsesEnum(a.Table, b.Enum.Name)
		}

	case steps.AddColumn:
		switch b := b.(type) {
		case steps.AlterPrimaryKey:
			return b.Table == a.Table && slices.Contains(b.Next, a.Column.Name)
		case steps.AddForeignKey:
			return fkInvolves(b.Table, b.ForeignKey, a.Table, a.Column.Name)
		case steps.CreateIndex:
			return b.Table == a.Table && slices.Contains(b.Index.Columns, a.Column.Name)
		}

	case steps.DropColumn:
		switch b := b.(type) {
		case steps.AddColumn:
			return b.Table == a.Table && b.Column.Name == a.Column.Name
		case steps.RemoveEnumVariant:
			return usesEnum(a.Column, b.Enum)
		case steps.AddEnumVariant:
			return usesEnum(a.Column, b.Enum)
		case steps.ReorderEnumVariants:
			return usesEnum(a.Column, b.Enum)
		case steps.DropEnum:
			return usesEnum(a.Column, b.Enum.Name)
		}

	case steps.AlterColumn:
		switch b := b.(type) {
		case steps.AddForeignKey:
			return fkInvolves(b.Table, b.ForeignKey, a.Table, a.Next.Name)
		case steps.CreateIndex:
			return b.Table == a.Table && slices.Contains(b.Index.Columns, a.Next.Name)
		case steps.RemoveEnumVariant:
			return usesEnum(a.Previous, b.Enum) && !usesEnum(a.Next, b.Enum)
		case steps.AddEnumVariant:
			return usesEnum(a.Previous, b.Enum) && !usesEnum(a.Next, b.Enum)
		case steps.ReorderEnumVariants:
			return usesEnum(a.Previous, b.Enum) && !usesEnum(a.Next, b.Enum)
		case steps.DropEnum:
			return usesEnum(a.Previous, b.Enum.Name)
		case steps.AlterPrimaryKey:
			return b.Table == a.Table && slices.Contains(b.Next, a.Next.Name)
		}

	case steps.AlterPrimaryKey:
		switch b := b.(type) {
		case steps.AddForeignKey:
			return b.Table == a.Table || b.ForeignKey.ReferencedTable == a.Table
		case steps.AlterColumn:
			return b.Table == a.Table && slices.Contains(a.Previous, b.Previous.Name) && !slices.Contains(a.Next, b.Next.Name)
		case steps.DropColumn:
			return b.Table == a.Table && slices.Contains(a.Previous, b.Column.Name)
		}

	case steps.CreateEnum:
		return startsUsingEnum(b, a.Enum.Name)

	case steps.DropEnum:
		if b, ok := b.(steps.CreateEnum); ok {
			return b.Enum.Name == a.Enum.Name
		}

	case steps.AddEnumVariant:
		return startsUsingEnum(b, a.Enum)

	case steps.RemoveEnumVariant:
		switch b := b.(type) {
		case steps.AddEnumVariant:
			return b.Enum == a.Enum
		case steps.ReorderEnumVariants:
			return b.Enum == a.Enum
		}
		return startsUsingEnum(b, a.Enum)

	case steps.ReorderEnumVariants:
		return startsUsingEnum(b, a.Enum)

	case steps.AddForeignKey:
		// nothing depends on a new foreign key

	case steps.DropForeignKey:
		switch b := b.(type) {
		case steps.DropTable:
			return b.Table.Name == a.Table || b.Table.Name == a.ForeignKey.ReferencedTable
		case steps.DropColumn:
			return fkInvolves(a.Table, a.ForeignKey, b.Table, b.Column.Name)
		case steps.AlterColumn:
			return fkInvolves(a.Table, a.ForeignKey, b.Table, b.Previous.Name)
		case steps.AddForeignKey:
			return b.Table == a.Table &&
				schema.ForeignKeyName(b.Table, b.ForeignKey) == schema.ForeignKeyName(a.Table, a.ForeignKey)
		case steps.DropIndex:
			return b.Table == a.ForeignKey.ReferencedTable && slices.Equal(b.Index.Columns, a.ForeignKey.ReferencedColumns)
		case steps.AlterPrimaryKey:
			return b.Table == a.Table || b.Table == a.ForeignKey.ReferencedTable
		}

	case steps.CreateIndex:
		if b, ok := b.(steps.AddForeignKey); ok {
			return a.Index.Unique && b.ForeignKey.ReferencedTable == a.Table &&
				slices.Equal(b.ForeignKey.ReferencedColumns, a.Index.Columns)
		}

	case steps.DropIndex:
		switch b := b.(type) {
		case steps.CreateIndex:
			return b.Table == a.Table && schema.IndexName(b.Table, b.Index) == schema.IndexName(a.Table, a.Index)
		case steps.DropColumn:
			return b.Table == a.Table && slices.Contains(a.Index.Columns, b.Column.Name)
		case steps.AlterColumn:
			return b.Table == a.Table && slices.Contains(a.Index.Columns, b.Previous.Name)
		case steps.AlterPrimaryKey:
			return b.Table == a.Table
		}

	case steps.RawScript:
		// raw scripts are applied on their own

	default:
		panic(fmt.Sprintf("planner: unhandled step type %T", a))
	}
	return false
}

// startsUsingEnum reports whether step b makes a column use the enum. Columns
// that keep using the enum while changing otherwise count as well: they may
// reference new variants, and their defaults must be set after a variant
// removal recreates the type.
func startsUsingEnum(b steps.Step, enum string) bool {
	switch b := b.(type) {
	case steps.CreateTable:
		return tableUsesEnum(b.Table, enum)
	case steps.AddColumn:
		return usesEnum(b.Column, enum)
	case steps.AlterColumn:
		return usesEnum(b.Next, enum)
	}
	return false
}

func usesEnum(c schema.Column, enum string) bool {
	return c.Type.Kind == schema.KindEnum && c.Type.EnumName == enum
}

func tableUsesEnum(t schema.Table, enum string) bool {
	return slices.Contains(t.UsedEnums(), enum)
}

// fkInvolves reports whether the foreign key owned by fkTable uses column as a
// local or referenced column.
func fkInvolves(fkTable string, fk schema.ForeignKey, table, column string) bool {
	if fkTable == table && slices.Contains(fk.Columns, column) {
		return true
	}
	return fk.ReferencedTable == table && slices.Contains(fk.ReferencedColumns, column)
}
