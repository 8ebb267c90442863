// Package commands defines the solverctl CLI, a thin client of the solverd
// HTTP API.
//
// Commands
//
//   - status              Print the solver's owner, orchestrator, target and balance
//   - trigger             Submit an orchestrator trigger on behalf of the owner
//   - deposit             Send native value to the solver
//   - set-target          Change or clear the delegate target (owner)
//   - withdraw native     Sweep the native balance (owner)
//   - withdraw token      Sweep a token balance (owner)
//   - ownership transfer  Hand ownership to another address (owner)
//   - ownership renounce  Give up ownership permanently (owner)
//   - balance             Query an account balance
//   - receipts list|get   Look up stored transaction receipts
//   - events              Print recent feed events
//   - token issue         Mint a bearer token from the shared secret
//
// Responses are printed as JSON. --field selects a value with a gjson path,
// for example --field tx_id or --field 'notifications.#.name'.
package commands
