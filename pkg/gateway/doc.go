// Package gateway is the admission pipeline in front of every tool call.
//
// Gate.Admit runs the stages in order and stops at the first failure:
//
//	credential_resolved -> sandbox_admit                                    (sandbox key)
//	credential_resolved -> profile_loaded -> rate_checked -> balance_checked
//	    -> monthly_checked -> deducted -> recharge_checked                  (API key)
//
// Gate.Handler wraps Admit for HTTP and then validates the body and runs
// the tool. A caller whose body is rejected has already been charged.
//
// Every store and limiter call gets its own StoreTimeout. Each stage adds an
// event to the gateway.Admit span and observes tollgate_stage_duration_seconds.
// Auto-recharge is handed to an async.Runner and never delays the response.
package gateway
