// Package workspace owns the private working area of a skyloop run: it
// hands out unique names for intermediate maps, configuration documents
// and group lists, relocates side artifacts into the area, and tears
// everything down exactly once at the end of the run.
package workspace
