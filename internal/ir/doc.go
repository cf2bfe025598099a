// Package ir holds the value, record and action types shared by every other
// package in shopkeep.
//
// ir imports nothing internal. Store, bus, epics and projections all speak
// in terms of these types, which keeps the dependency graph a tree:
//
//	ir <- store <- configstore, featurestore
//	ir <- task, bus <- epic <- shop
//	ir <- projection
//
// Key design constraints:
//   - Values are a sealed set of JSON shapes; integers stay Int so remote ids
//     compare exactly
//   - Config payloads are stored via MarshalCanonical, so equal values give
//     equal bytes
//   - Actions are transient; only their effects are persisted
package ir
