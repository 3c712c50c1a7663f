// Package agent is the page agent: it executes one interaction request at a
// time against the live portal tab.
//
// Every "find X" is a Cascade of named strategies evaluated over a Snapshot,
// the annotated page HTML parsed with goquery. The first strategy that
// produces a result wins and its name is logged and counted. Strategies are
// pure functions over the snapshot; the agent turns their result into a real
// mouse click through the browser backend using the data-ia-id stamped on
// every element by the in-page bootstrap script.
//
// The agent never returns an error for "not found" conditions. Errors are
// reserved for execution failures such as a failed script injection or a
// closed page, and are typed as transport errors.
//
// Requests reach the agent through a Server, which serializes them on a
// single dispatch worker and implements protocol.Transport.
package agent
