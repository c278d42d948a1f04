// Package approval decides whether each package of a dependency graph may
// be used.
//
// A [Policy] holds the organisation's rules: how recently a package must
// have been released, which licenses are blocked and which vulnerability
// severity is tolerated. The [Engine] applies it in two passes:
//
//  1. Every package is judged on its own data (license, maintenance,
//     vulnerabilities). The result is captured as a full snapshot.
//  2. Every package approved in pass 1 is rejected if anything it depends
//     on, at any depth, ends up rejected. Pass 2 reads only the snapshot,
//     so the outcome does not depend on evaluation order.
//
// Two passes suffice: pass 1 settles every local verdict and pass 2 walks
// the full dependency depth, so a third pass cannot change any status.
//
//	engine := approval.New(policy, license.NewValidator(), clock.System{})
//	stats := engine.Evaluate(g, vulns)
package approval
