// Package results keeps the tabular record of job outcomes.
//
// The CSV sink has the columns
//
//	id,Flow,Predecessors,Location,Status,Log location,Details
//
// with the header written only when the first row is added. Ids are not
// stored anywhere else: each write counts the rows already in the file, so
// writes to one sink go through a single CSVRecorder that serialises them.
package results
