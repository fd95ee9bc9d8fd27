// Package tools dispatches the model's medical-data tool calls.
//
// Three tools are registered: check_drug_interaction, get_drug_safety_info
// and get_lab_reference_range. Every call returns a Result, which is data
// for the model and never an error for the caller: invalid input, unknown
// tools and collaborator failures all become a Result whose Error field is
// set, with a Source naming where the data would have come from.
//
// Drug tools delegate to a DrugLookup (see package openfda). Lab ranges
// come from a reference table compiled into the binary.
package tools
