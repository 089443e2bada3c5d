// Package ledger is the minimal ledger client verifybuild needs: base58
// addresses, program-derived addresses, upgradeable-loader account layouts,
// legacy transaction encoding and signing, keypair files and a JSON-RPC client.
package ledger
