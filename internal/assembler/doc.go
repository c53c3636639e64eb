// Package assembler merges processed trials into a Dataset.
//
// Rows follow file order and then trial order. Columns are the union of all
// property and trace names, in the order they were first seen; a trial that
// lacks a column holds Undefined there. A column holds either scalars or
// series, never both.
package assembler
