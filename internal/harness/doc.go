// Package harness runs shop scenarios end to end.
//
// A scenario stubs the shop API, dispatches workflows through a real
// shop.App (store, bus, epics and projections) and checks the resulting
// action trace, the cached config entries and the projections.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	api:
//	  - method: GET
//	    path: get/auth/app/shop/orders
//	    query: { page: "2" }
//	    status: 200
//	    body: { success: true, orders: [] }
//	setup:
//	  - config: qr
//	    value: { code: abc }
//	flow:
//	  - dispatch: ORDER.getList
//	    payload: { page: 2 }
//	    expect:
//	      outcome: success
//	      payload: { page: 2 }
//	assertions:
//	  - type: trace_order
//	    actions: [ORDER.getList.start, ORDER.getList.success]
//	  - type: config
//	    name: qr
//	    value: { code: abc }
//	  - type: projection
//	    projection: orders
//	    field: order_id
//	    values: [1, 2]
//
// # Determinism
//
// Every flow step waits for its outcome and then for the App to go idle,
// so follow-up workflows (silent fetch after login) land in the trace
// before the next step. Correlation keys default to the kind and no
// timestamps reach the trace, which keeps golden files stable.
package harness
