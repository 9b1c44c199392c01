// Package tools contains the metered utilities: pure functions from a
// decoded JSON body to a JSON-serializable result.
//
// Tools never see the caller or the ledger. The gateway admits and bills
// the call, then checks Required fields with Tool.Validate and runs it:
//
//	tool, _ := registry.Get("word-counter")
//	if err := tool.Validate(input); err != nil { ... }
//	result, err := tool.Run(input)
//
// Input errors are returned as *apierr.Error with CodeValidation.
package tools
