// Package harness runs auction scenarios against a real engine.
//
// A scenario builds a world, creates entities, scripts what each system
// does when it wins, runs rounds and then checks the trace and the final
// state. Every scenario gets a fresh in-memory store, a deterministic
// clock and sequential round ids, so the same scenario always yields the
// same trace and can be compared against a golden file.
//
// # Scenario Format
//
//	name: heal_wounded
//	description: "A wounded entity is healed until full"
//	world: ../world                  # CUE world directory, relative to the file
//	setup:                           # store batch operations, applied before entities
//	  - type: upsert_invariant
//	    name: never_dead
//	    asserts: "Health.current > 0"
//	entities:
//	  - alias: knight
//	    components:
//	      Health: {current: 4, maximum: 10}
//	      Healer: {power: 3}
//	scripts:
//	  healer:
//	    - set:
//	        Health.current: "Health.current + Healer.power"
//	    - fail: "out of mana"
//	invoke_timeout: 200ms
//	rounds:
//	  - entity: knight
//	    expect: {outcome: won, winner: healer, bid: 18}
//	  - entity: knight
//	    repeat: 2
//	assertions:
//	  - type: component
//	    entity: knight
//	    component: Health
//	    expect: {current: 10}
//	  - type: invariant
//	    entity: knight
//	    name: health_bounded
//	    status: held
//
// # Scripts
//
// Each invocation of a system consumes the next step of its script; the
// last step repeats once the script runs out. A step may sleep, delete
// components, write whole components, set single fields from a bid
// expression evaluated over what the system can see, and finally fail or
// panic. Systems without a script succeed without writing.
//
// # Assertion Types
//
//   - component: the component is present and contains expect (subset match)
//   - component_absent: the component is absent or tombstoned
//   - invariant: the named invariant has the given status on the entity
//   - round_count: the entity has exactly count recorded rounds
//   - trace_contains: some round on the entity matches outcome and winner
//   - trace_order: the entity's winners appear in the given order
package harness
