// Package crawler discovers the pages of a site by following links.
//
// # Frontier
//
// Discovered URLs wait in an unordered pool. Pop order is whatever map
// iteration yields, so callers must not depend on breadth-first or
// depth-first traversal; the guarantee is the set of pages visited.
//
// # Budget
//
// A worker reserves a page slot before it claims a URL, so visited plus
// in-flight pages never exceed the budget and the final count is exact
// even with several workers. Failed fetches release their slot.
//
// # Politeness
//
// Each worker waits a fixed delay between its own fetches. The delay is
// per worker, not global.
package crawler
