// Package auction runs bidding rounds for single entities.
//
// A round gathers the systems interested in an entity, evaluates every
// candidate's bid rules against a snapshot of the entity, picks the
// highest bidder and invokes it through a capability-scoped View.
//
// ROUND LIFECYCLE:
//
//  1. Acquire the entity's lock. Held until the round record is written,
//     on every exit path.
//  2. Read the entity snapshot in one transaction.
//  3. Decide: candidates are systems with at least one granted component
//     present; each bids the maximum over its active rules; the highest
//     bid wins and ties go to the smallest system name.
//  4. Invoke the winner with a View under the configured timeout. Writes
//     through the View are validated immediately and staged.
//  5. Commit the staged writes and the round record in one transaction,
//     so the next round sees all of them or none.
//
// Rounds for different entities share no mutable state and run in
// parallel. Rounds for one entity are strictly sequential.
//
// Bid evaluation is read-only and fans out over candidates with a bounded
// errgroup. A rule that fails to evaluate degrades to "no bid" for that
// rule only.
package auction
