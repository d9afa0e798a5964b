// Package cb implements CompliedBlock (CB), the immutable row-subset view
// that backs every cache fragment, and the process-wide pool that
// canonicalizes and memoizes the four CB update operators (spec.md §4.2).
package cb

import (
	"github.com/TramsWang/sinc-go/internal/cbtable"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// CB is an immutable view over a subset of records, with an optional lazily
// built column index. CBs are only ever constructed through a Pool; their
// Id is the dense insertion position within that pool.
type CB struct {
	id    int
	rows  []kbdata.Record
	arity int
	index *cbtable.IntTable
}

// ID returns the CB's dense pool-assigned identity.
func (c *CB) ID() int { return c.id }

// Rows returns the CB's underlying row view. Callers must not mutate it.
func (c *CB) Rows() []kbdata.Record { return c.rows }

// Len returns the number of rows in the block.
func (c *CB) Len() int { return len(c.rows) }

// Arity returns the row arity.
func (c *CB) Arity() int { return c.arity }

// ensureIndex lazily materializes the CB's column index the first time an
// operator needs it (spec.md §4.3 "build_indices() lazily materializes
// each CB's IntTable index").
func (c *CB) ensureIndex() *cbtable.IntTable {
	if c.index == nil && len(c.rows) > 0 {
		c.index = cbtable.New(c.rows, c.arity)
	}
	return c.index
}
