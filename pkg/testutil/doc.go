// Package testutil provides in-memory fakes for testing building-block
// processing and deployment without Azure connectivity.
//
// Features:
//   - FakeRunner: Records az CLI invocations and replays scripted output
//   - FakeDeployer: Records resource group and deployment requests
//   - FakeCredential: Returns fake tokens for the ARM deployer
//   - NewContext: Builds a valid building-block context
package testutil
